package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetadataPath is where ADFS publishes its federation metadata
const MetadataPath = "/federationMetadata/2007-06/federationmetadata.xml"

// maxMetadataSize bounds the metadata document read from ADFS
const maxMetadataSize = 1 << 20

type federationMetadata struct {
	XMLName         xml.Name         `xml:"EntityDescriptor"`
	RoleDescriptors []roleDescriptor `xml:"RoleDescriptor"`
}

type roleDescriptor struct {
	KeyDescriptors []keyDescriptor `xml:"KeyDescriptor"`
}

type keyDescriptor struct {
	Use         string `xml:"use,attr"`
	Certificate string `xml:"KeyInfo>X509Data>X509Certificate"`
}

// KeyCache holds the token signing keys published by ADFS: a primary and,
// during certificate rollover, a secondary.
type KeyCache struct {
	mu       sync.RWMutex
	keys     []*rsa.PublicKey
	promoted bool

	metadataURL string
	httpClient  *http.Client
	logger      *zap.SugaredLogger
}

// NewKeyCache creates an empty cache that loads keys from the ADFS server at adfsURL
func NewKeyCache(adfsURL string, timeout time.Duration, logger *zap.SugaredLogger) *KeyCache {
	return &KeyCache{
		metadataURL: strings.TrimRight(adfsURL, "/") + MetadataPath,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Keys returns a snapshot of the cached keys, primary first
func (c *KeyCache) Keys() []*rsa.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*rsa.PublicKey(nil), c.keys...)
}

// Promote makes key the primary. Only the first promotion after a refresh
// takes effect, so sessions signed by either key cannot flip the order back
// and forth.
func (c *KeyCache) Promote(key *rsa.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.promoted {
		return
	}
	for i, k := range c.keys {
		if i > 0 && k.Equal(key) {
			c.keys[0], c.keys[i] = c.keys[i], c.keys[0]
			c.promoted = true
			c.logger.Infow("Verified jwt with secondary certificate, promoting to primary")
			return
		}
	}
}

// Refresh replaces the cached keys with those currently published by ADFS.
// A failed connection is retried once.
func (c *KeyCache) Refresh(ctx context.Context) error {
	c.logger.Infow("Refreshing certificates from ADFS", "url", c.metadataURL)

	c.mu.Lock()
	c.keys = nil
	c.promoted = false
	c.mu.Unlock()

	data, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warnw("Failed to connect to ADFS, retrying", "error", err)
		if data, err = c.fetch(ctx); err != nil {
			return newUnavailable(err)
		}
	}

	keys, err := parseSigningKeys(data)
	if err != nil {
		return newLoginFailure(err)
	}

	c.mu.Lock()
	c.keys = keys
	c.mu.Unlock()

	c.logger.Infow("Loaded ADFS signing certificates", "count", len(keys))
	return nil
}

func (c *KeyCache) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.metadataURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("federation metadata returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
}

// parseSigningKeys extracts up to two RSA keys from federation metadata.
// ADFS lists its token service after the application service, so the second
// role descriptor is preferred.
func parseSigningKeys(data []byte) ([]*rsa.PublicKey, error) {
	var metadata federationMetadata
	if err := xml.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("parse federation metadata: %w", err)
	}
	if len(metadata.RoleDescriptors) == 0 {
		return nil, errors.New("federation metadata has no role descriptors")
	}

	role := metadata.RoleDescriptors[0]
	if len(metadata.RoleDescriptors) > 1 {
		role = metadata.RoleDescriptors[1]
	}

	keys := make([]*rsa.PublicKey, 0, 2)
	for _, descriptor := range role.KeyDescriptors {
		if descriptor.Use != "" && descriptor.Use != "signing" {
			continue
		}
		key, err := parseCertificate(descriptor.Certificate)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		if len(keys) == 2 {
			break
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("federation metadata has no signing certificates")
	}
	return keys, nil
}

func parseCertificate(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(encoded), ""))
	if err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("certificate does not hold an RSA key")
	}
	return key, nil
}
