// Package license stores issued licenses and trials and validates order numbers.
package license

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fernet/fernet-go"
	"github.com/rs/zerolog/log"

	"github.com/wfassist/tailor/internal/domain"
)

const (
	// DataFileName holds the Fernet token of the license map
	DataFileName = "licenses.dat"
	// KeyFileName holds the base64 Fernet key
	KeyFileName = "licenses.key"
)

// noTTL disables the token age check; licenses carry their own expiry
const noTTL = -1

var errUndecryptable = errors.New("license data could not be decrypted")

// Store is the encrypted-at-rest map of order number to license.
// Licenses are only held decrypted in memory.
type Store struct {
	mu       sync.RWMutex
	dataPath string
	key      *fernet.Key
	licenses map[string]*domain.PackLicense
}

// NewStore opens the license store in dir, creating the key on first use.
// Data that cannot be decrypted is logged and the store starts empty.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create license directory: %w", err)
	}

	key, err := loadOrCreateKey(filepath.Join(dir, KeyFileName))
	if err != nil {
		return nil, err
	}

	s := &Store{
		dataPath: filepath.Join(dir, DataFileName),
		key:      key,
		licenses: make(map[string]*domain.PackLicense),
	}

	if err := s.load(); err != nil {
		if !errors.Is(err, errUndecryptable) {
			return nil, err
		}
		log.Error().Err(err).Str("path", s.dataPath).Msg("License store is unreadable, starting empty")
	}
	return s, nil
}

func loadOrCreateKey(path string) (*fernet.Key, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := fernet.DecodeKey(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("license key file %s is not a valid Fernet key: %w", path, err)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read license key: %w", err)
	}

	key := new(fernet.Key)
	if err := key.Generate(); err != nil {
		return nil, fmt.Errorf("failed to generate license key: %w", err)
	}
	if err := os.WriteFile(path, []byte(key.Encode()), 0600); err != nil {
		return nil, fmt.Errorf("failed to write license key: %w", err)
	}
	log.Info().Str("path", path).Msg("Generated new license store key")
	return key, nil
}

func (s *Store) load() error {
	token, err := os.ReadFile(s.dataPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read license data: %w", err)
	}

	plain := fernet.VerifyAndDecrypt(token, noTTL, []*fernet.Key{s.key})
	if plain == nil {
		return errUndecryptable
	}

	licenses := make(map[string]*domain.PackLicense)
	if err := json.Unmarshal(plain, &licenses); err != nil {
		return fmt.Errorf("%w: %v", errUndecryptable, err)
	}
	s.licenses = licenses
	return nil
}

// commitUnsafe encrypts and writes next, then makes it the in-memory map
// (caller must hold lock)
func (s *Store) commitUnsafe(next map[string]*domain.PackLicense) error {
	plain, err := json.Marshal(next)
	if err != nil {
		return err
	}
	token, err := fernet.EncryptAndSign(plain, s.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt license data: %w", err)
	}

	tempPath := s.dataPath + ".tmp"
	if err := os.WriteFile(tempPath, token, 0600); err != nil {
		return err
	}
	if err := os.Rename(tempPath, s.dataPath); err != nil {
		os.Remove(tempPath)
		return err
	}

	s.licenses = next
	return nil
}

// cloneUnsafe copies the map; stored licenses are never mutated in place
// (caller must hold lock)
func (s *Store) cloneUnsafe() map[string]*domain.PackLicense {
	next := make(map[string]*domain.PackLicense, len(s.licenses)+1)
	for order, l := range s.licenses {
		next[order] = l
	}
	return next
}

// Get returns a copy of the license for an order number
func (s *Store) Get(orderNumber string) (*domain.PackLicense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.licenses[orderNumber]
	if !ok {
		return nil, false
	}
	return copyLicense(l), true
}

// Put inserts or replaces a license and persists the store
func (s *Store) Put(l *domain.PackLicense) error {
	_, err := s.InsertIf(l, nil)
	return err
}

// InsertIf stores l unless reject reports a conflict with the licenses already
// held for the same pack. The check and the write happen under one lock.
// It returns the conflicting license, or nil when l was stored.
func (s *Store) InsertIf(l *domain.PackLicense, reject func(existing domain.PackLicense) bool) (*domain.PackLicense, error) {
	if l.OrderNumber == "" {
		return nil, fmt.Errorf("license has no order number")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if reject != nil {
		for _, order := range s.sortedOrdersUnsafe() {
			existing := s.licenses[order]
			if existing.PackID == l.PackID && reject(*copyLicense(existing)) {
				return copyLicense(existing), nil
			}
		}
	}

	next := s.cloneUnsafe()
	next[l.OrderNumber] = copyLicense(l)
	return nil, s.commitUnsafe(next)
}

// Delete removes a license
func (s *Store) Delete(orderNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.licenses[orderNumber]; !ok {
		return nil
	}
	next := s.cloneUnsafe()
	delete(next, orderNumber)
	return s.commitUnsafe(next)
}

// Update applies fn to a copy of a stored license and persists the result.
// It reports false when the order number is unknown.
func (s *Store) Update(orderNumber string, fn func(l *domain.PackLicense)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[orderNumber]
	if !ok {
		return false, nil
	}
	updated := copyLicense(l)
	fn(updated)

	next := s.cloneUnsafe()
	next[orderNumber] = updated
	return true, s.commitUnsafe(next)
}

func (s *Store) sortedOrdersUnsafe() []string {
	orders := make([]string, 0, len(s.licenses))
	for order := range s.licenses {
		orders = append(orders, order)
	}
	sort.Strings(orders)
	return orders
}

// All returns every license ordered by order number
func (s *Store) All() []domain.PackLicense {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PackLicense, 0, len(s.licenses))
	for _, l := range s.licenses {
		out = append(out, *copyLicense(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNumber < out[j].OrderNumber })
	return out
}

// ForPack returns the licenses issued for a pack, ordered by order number
func (s *Store) ForPack(packID string) []domain.PackLicense {
	var out []domain.PackLicense
	for _, l := range s.All() {
		if l.PackID == packID {
			out = append(out, l)
		}
	}
	return out
}

// Len returns the number of stored licenses
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.licenses)
}

func copyLicense(l *domain.PackLicense) *domain.PackLicense {
	c := *l
	if l.ExpiryDate != nil {
		expiry := *l.ExpiryDate
		c.ExpiryDate = &expiry
	}
	c.FeaturesEnabled = append([]string(nil), l.FeaturesEnabled...)
	return &c
}
