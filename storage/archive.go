// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-crypt/x/argon2"
	"github.com/klauspost/compress/zstd"
)

// DefaultEntryName is the internal name given to documents in freshly
// created archives, and the fallback when an existing archive's entry
// name cannot be recovered.
const DefaultEntryName = "data.xml"

const (
	archiveMagic = "MAR1"

	saltSize  = 16
	nonceSize = 12
	keySize   = 32

	argonTime    = 2
	argonMemory  = 19456 // KiB
	argonThreads = 1
)

// archiveBackend seals documents into a single-entry container: the
// document is zstd-compressed, then encrypted with AES-256-GCM under an
// argon2id key derived from the password and a per-save salt.
type archiveBackend struct {
	logger *slog.Logger
}

type archiveEntry struct {
	name       string
	salt       []byte
	nonce      []byte
	ciphertext []byte
}

func (b archiveBackend) Load(path, password string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	entries, err := parseArchive(data)
	if err != nil {
		// A mangled container and a wrong password cannot be told apart.
		return nil, fmt.Errorf("%w: %v", ErrPasswordRequired, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty archive", ErrArchive)
	}
	if len(entries) > 1 {
		return nil, fmt.Errorf("%w: archive contains multiple entries", ErrArchive)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: encrypted file", ErrPasswordRequired)
	}

	entry := entries[0]
	gcm, err := sealCipher(password, entry.salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	compressed, err := gcm.Open(nil, entry.nonce, entry.ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid password or corrupt archive", ErrPasswordRequired)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid password or corrupt archive", ErrPasswordRequired)
	}
	return plain, nil
}

func (b archiveBackend) Save(path string, data []byte, password string) error {
	if password == "" {
		return fmt.Errorf("%w: archives cannot be written without a password", ErrPasswordRequired)
	}

	// Keep the internal entry name stable across re-saves.
	name := DefaultEntryName
	if _, err := os.Stat(path); err == nil {
		if existing, err := ReadEntryName(path); err == nil {
			name = existing
		} else {
			b.logger.Debug("could not recover archive entry name, using default",
				"path", path, "error", err)
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	compressed := enc.EncodeAll(data, nil)
	enc.Close()

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	gcm, err := sealCipher(password, salt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	ciphertext := gcm.Seal(nil, nonce, compressed, nil)

	buf := make([]byte, 0, len(archiveMagic)+2*binary.MaxVarintLen64+len(name)+saltSize+nonceSize+binary.MaxVarintLen64+len(ciphertext))
	buf = append(buf, archiveMagic...)
	buf = binary.AppendUvarint(buf, 1)
	buf = binary.AppendUvarint(buf, uint64(len(name)))
	buf = append(buf, name...)
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = binary.AppendUvarint(buf, uint64(len(ciphertext)))
	buf = append(buf, ciphertext...)

	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// ReadEntryName recovers the internal entry name of an existing archive.
// No password is needed; entry names are not encrypted.
func ReadEntryName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	entries, err := parseArchive(data)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: empty archive", ErrArchive)
	}
	return entries[0].name, nil
}

func sealCipher(password string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keySize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// parseArchive splits a container into its entry frames without touching
// any ciphertext. Entry counts are not validated here.
func parseArchive(data []byte) ([]archiveEntry, error) {
	if len(data) < len(archiveMagic) || string(data[:len(archiveMagic)]) != archiveMagic {
		return nil, errors.New("bad magic")
	}
	rest := data[len(archiveMagic):]
	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, errors.New("truncated header")
	}
	rest = rest[n:]

	var entries []archiveEntry
	for i := uint64(0); i < count; i++ {
		var e archiveEntry
		nameLen, n := binary.Uvarint(rest)
		if n <= 0 || nameLen > uint64(len(rest)-n) {
			return nil, errors.New("truncated entry name")
		}
		rest = rest[n:]
		e.name = string(rest[:nameLen])
		rest = rest[nameLen:]

		if len(rest) < saltSize+nonceSize {
			return nil, errors.New("truncated key material")
		}
		e.salt = rest[:saltSize]
		rest = rest[saltSize:]
		e.nonce = rest[:nonceSize]
		rest = rest[nonceSize:]

		ctLen, n := binary.Uvarint(rest)
		if n <= 0 || ctLen > uint64(len(rest)-n) {
			return nil, errors.New("truncated ciphertext")
		}
		rest = rest[n:]
		e.ciphertext = rest[:ctLen]
		rest = rest[ctLen:]

		entries = append(entries, e)
	}
	if len(rest) != 0 {
		return nil, errors.New("trailing bytes after final entry")
	}
	return entries, nil
}
