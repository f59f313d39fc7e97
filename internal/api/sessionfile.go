package api

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// SessionFile is a session-scoped attachment sent inline with a chat
// message: the bytes travel as a base64 text field rather than multipart.
type SessionFile struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	Data     string `json:"data"`
	Digest   string `json:"digest,omitempty"`
}

// SessionFileStager encodes session files and dedupes repeated payloads by
// content digest, so re-attaching the same file within a session does not
// re-encode or re-send identical bytes.
type SessionFileStager struct {
	mu     sync.Mutex
	staged map[uint64]SessionFile
}

// NewSessionFileStager creates an empty stager.
func NewSessionFileStager() *SessionFileStager {
	return &SessionFileStager{staged: make(map[uint64]SessionFile)}
}

// Stage encodes data for inline transmission. A payload with a digest seen
// before returns the previously staged file.
func (s *SessionFileStager) Stage(filename, mimetype string, data []byte) SessionFile {
	digest := xxhash.Sum64(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.staged[digest]; ok {
		return f
	}
	f := SessionFile{
		Filename: filename,
		Mimetype: mimetype,
		Data:     base64.StdEncoding.EncodeToString(data),
		Digest:   fmt.Sprintf("%016x", digest),
	}
	s.staged[digest] = f
	return f
}

// Reset forgets all staged payloads, typically on session switch.
func (s *SessionFileStager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = make(map[uint64]SessionFile)
}
