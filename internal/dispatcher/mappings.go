package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// mappingKeyPrefix is the Redis key prefix for custom destination mappings.
const mappingKeyPrefix = "mapping:"

// Mapping is one operator-managed destination override for an account.
type Mapping struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisMappingStore stores custom destination mappings in Redis.
type RedisMappingStore struct {
	client *redis.Client
}

// NewRedisMappingStore creates a mapping store over the given client.
func NewRedisMappingStore(client *redis.Client) *RedisMappingStore {
	return &RedisMappingStore{client: client}
}

// Get returns the custom destination for an account, or empty when none is
// configured.
func (s *RedisMappingStore) Get(ctx context.Context, accountID string) (string, error) {
	data, err := s.client.Get(ctx, mappingKeyPrefix+accountID).Bytes()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get mapping for account %s: %w", accountID, err)
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal mapping for account %s: %w", accountID, err)
	}
	return m.Email, nil
}

// Set writes or replaces the custom destination for an account.
func (s *RedisMappingStore) Set(ctx context.Context, accountID, email string) error {
	data, err := json.Marshal(Mapping{
		AccountID: accountID,
		Email:     email,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	if err := s.client.Set(ctx, mappingKeyPrefix+accountID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set mapping for account %s: %w", accountID, err)
	}
	return nil
}

// Delete removes the custom destination for an account.
func (s *RedisMappingStore) Delete(ctx context.Context, accountID string) error {
	if err := s.client.Del(ctx, mappingKeyPrefix+accountID).Err(); err != nil {
		return fmt.Errorf("failed to delete mapping for account %s: %w", accountID, err)
	}
	return nil
}
