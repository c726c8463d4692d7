package imagecrypt

import (
	"encoding/base64"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ObjectPrefix is the URL path under which stored objects are served.
const ObjectPrefix = "/objects/"

// Object is a decrypted image held in memory.
type Object struct {
	Data []byte
	MIME string
}

// ObjectStore hands out local, revocable references to decrypted images.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewObjectStore returns an empty store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string]Object)}
}

// Create stores data and returns its URL.
func (s *ObjectStore) Create(data []byte, mime string) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.objects[id] = Object{Data: data, MIME: mime}
	s.mu.Unlock()
	return ObjectPrefix + id
}

// Get looks an object up by id or by the URL Create returned.
func (s *ObjectStore) Get(ref string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[strings.TrimPrefix(ref, ObjectPrefix)]
	return obj, ok
}

// Revoke drops an object. Unknown references are ignored.
func (s *ObjectStore) Revoke(ref string) {
	s.mu.Lock()
	delete(s.objects, strings.TrimPrefix(ref, ObjectPrefix))
	s.mu.Unlock()
}

// Len returns the number of live objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// transparentPixel is a 1x1 transparent PNG.
const transparentPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mP8/x8AAuMBgQm6BecAAAAASUVORK5CYII="

var placeholder = func() []byte {
	b, err := base64.StdEncoding.DecodeString(transparentPixel)
	if err != nil {
		panic(err)
	}
	return b
}()

// Placeholder returns the image shown while an avatar is missing or failed.
func Placeholder() Object {
	return Object{Data: placeholder, MIME: MIMEPNG}
}
