// Package models defines the domain types for Evolve.
package models

// Client is one record served by the record source.
//
// EndDate is nil when the client has no end date. ImageRef is the hex
// identifier of the encrypted avatar blob; the JSON name follows the source
// schema.
type Client struct {
	ID          int64   `json:"id"`
	ClientID    int64   `json:"client_id"`
	Name        string  `json:"name"`
	PhoneNumber string  `json:"phone_number"`
	EndDate     *string `json:"end_date"`
	Status      string  `json:"status"`
	Gender      string  `json:"gender"`
	ImageRef    string  `json:"image_url"`
}

// FileMeta describes one file in an image directory.
type FileMeta struct {
	Path     string `json:"path"`
	Stem     string `json:"stem"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// ImageMapping links a phone number (the plaintext avatar's file stem) to the
// reference of its encrypted blob.
type ImageMapping struct {
	PhoneNumber string `json:"phone_number"`
	ImageRef    string `json:"image_ref"`
	Checksum    string `json:"checksum"`
}
