package mcpserver

// GuideURI is the resource URI of RosterGuide.
const GuideURI = "evolve://roster-guide"

// RosterGuide explains how list_clients shapes its output, so LLM consumers
// can build the same queries the dashboard does.
const RosterGuide = `# Evolve Roster Guide

## Record fields

| Field | Notes |
|---|---|
| client_id | Stable business id; use it with get_client |
| name | Free text |
| phone_number | Also the stem of the plaintext avatar file |
| status | active or inactive |
| gender | Lowercased, e.g. m or f |
| end_date | DD-Mon-YYYY from the record source, null when unknown |
| image_url | Hex reference of the encrypted avatar blob |

## Filtering

All filters combine with AND. Empty inputs place no constraint.

1. **q** matches a case-insensitive substring of the name or the phone number.
2. **status** and **gender** match exactly after lowercasing.
3. **start** / **end** take dd-mm-yyyy and are inclusive. Once either bound is
   set, clients without an end date are hidden.

## Sorting

* **name** compares case- and accent-insensitively, with digit runs compared
  by value (Client 2 sorts before Client 10).
* **date** puts clients without an end date last in ascending order and first
  in descending order.
* **status** compares the labels Active and Inactive.

Ties keep the order in which the records were fetched.

## Serial numbers

The serial column counts visible rows only, from 1, in the order shown.

## Avatars

Blobs are AES-GCM: a 12-byte IV, the ciphertext and a 16-byte tag. Older
blobs put the tag before the ciphertext; avatar_info reports which layout
opened a blob.
`
