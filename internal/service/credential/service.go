package credential

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/merchantry/fulfillment-api/internal/model"
	"github.com/merchantry/fulfillment-api/internal/repository"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/security"
)

var (
	errInvalidCredentials = errors.New("invalid webhook credentials")
	errMissingCredentials = errors.New("missing webhook credentials")
)

// Service resolves per-store carrier credentials and warehouse
// addresses. Decrypted secrets live only for the duration of one call;
// nothing here caches plaintext.
type Service struct {
	integrations repository.IntegrationRepository
	encryptor    security.Encryptor
	hasher       security.PasswordHasher
	logger       *logger.Logger
}

func NewService(integrations repository.IntegrationRepository, encryptor security.Encryptor, hasher security.PasswordHasher, log *logger.Logger) *Service {
	return &Service{
		integrations: integrations,
		encryptor:    encryptor,
		hasher:       hasher,
		logger:       log,
	}
}

// ResolveWebhookAuth authenticates an inbound carrier webhook against
// the store's integration record. Three schemes are accepted, in order:
// Basic auth against the stored bcrypt hash, Basic auth against the
// decrypted legacy key/secret pair, then x-api-key/x-api-secret
// headers. The first scheme whose credentials are present decides.
func (s *Service) ResolveWebhookAuth(ctx context.Context, storeID uuid.UUID, r *http.Request) (*model.StoreIntegration, error) {
	integration, err := s.activeIntegration(ctx, storeID)
	if err != nil {
		return nil, err
	}

	if username, password, ok := r.BasicAuth(); ok {
		if s.basicAuthValid(integration, username, password) {
			return integration, nil
		}
		return nil, apperrors.Unauthorized(errInvalidCredentials)
	}

	headerKey := r.Header.Get("x-api-key")
	headerSecret := r.Header.Get("x-api-secret")
	if headerKey != "" {
		creds, err := s.DecryptCredentials(integration)
		if err != nil {
			return nil, err
		}
		if constantEq(headerKey, creds.APIKey) && constantEq(headerSecret, creds.APISecret) {
			return integration, nil
		}
		return nil, apperrors.Unauthorized(errInvalidCredentials)
	}

	return nil, apperrors.Unauthorized(errMissingCredentials)
}

func (s *Service) basicAuthValid(integration *model.StoreIntegration, username, password string) bool {
	// Preferred path: stored username plus bcrypt hash.
	if integration.ShipStationUsername != nil && integration.PasswordHash != nil {
		if constantEq(username, *integration.ShipStationUsername) &&
			s.hasher.Compare(*integration.PasswordHash, password) == nil {
			return true
		}
	}

	// Legacy path: Basic auth carrying the raw key/secret pair.
	creds, err := s.DecryptCredentials(integration)
	if err != nil {
		s.logger.Error(err, "credential decryption failed during webhook auth",
			"store_id", integration.StoreID.String())
		return false
	}
	return constantEq(username, creds.APIKey) && constantEq(password, creds.APISecret)
}

// DecryptCredentials unseals the integration's API key pair. The
// returned bundle must not outlive the calling operation.
func (s *Service) DecryptCredentials(integration *model.StoreIntegration) (*model.Credentials, error) {
	if integration == nil {
		return nil, apperrors.StoreNotFound("unknown")
	}

	key, err := s.encryptor.DecryptString(integration.APIKeyEncrypted)
	if err != nil {
		return nil, apperrors.CredentialDecrypt(err)
	}

	var secret string
	if len(integration.APISecretEncrypted) > 0 {
		secret, err = s.encryptor.DecryptString(integration.APISecretEncrypted)
		if err != nil {
			return nil, apperrors.CredentialDecrypt(err)
		}
	}

	return &model.Credentials{APIKey: key, APISecret: secret}, nil
}

// ResolveShipFrom picks the warehouse address for outbound shipments:
// an address pinned in the integration config wins, then the store's
// default warehouse, then nil (the gateway falls back to its
// placeholder and logs a warning).
func (s *Service) ResolveShipFrom(ctx context.Context, integration *model.StoreIntegration) (*model.ShipFromAddress, error) {
	if len(integration.Configuration) > 0 {
		var cfg model.IntegrationConfig
		if err := json.Unmarshal(integration.Configuration, &cfg); err != nil {
			s.logger.Warn("malformed integration configuration, ignoring",
				"store_id", integration.StoreID.String(),
				"integration_id", integration.ID.String())
		} else if cfg.ShipFrom != nil {
			return cfg.ShipFrom, nil
		}
	}

	shipFrom, err := s.integrations.GetDefaultShipFrom(ctx, integration.StoreID)
	if err != nil {
		return nil, err
	}
	return shipFrom, nil
}

// ResolveGatewayConfig extracts a base URL override from the
// integration config, if any.
func (s *Service) ResolveGatewayConfig(integration *model.StoreIntegration) model.IntegrationConfig {
	var cfg model.IntegrationConfig
	if len(integration.Configuration) > 0 {
		if err := json.Unmarshal(integration.Configuration, &cfg); err != nil {
			s.logger.Warn("malformed integration configuration, ignoring",
				"store_id", integration.StoreID.String())
		}
	}
	return cfg
}

// IntegrationFor returns the store's active integration record for
// outbound carrier calls, preferring v2 over legacy when both exist.
func (s *Service) IntegrationFor(ctx context.Context, storeID uuid.UUID) (*model.StoreIntegration, error) {
	return s.activeIntegration(ctx, storeID)
}

func (s *Service) activeIntegration(ctx context.Context, storeID uuid.UUID) (*model.StoreIntegration, error) {
	for _, t := range []model.IntegrationType{model.IntegrationShipStationV2, model.IntegrationShipStationLegacy} {
		integration, err := s.integrations.GetCredentials(ctx, storeID, t)
		if err != nil {
			return nil, err
		}
		if integration != nil && integration.Active {
			return integration, nil
		}
	}
	return nil, apperrors.StoreNotFound(storeID.String())
}

// BasicAuthHeader builds the Authorization value for the legacy API.
func BasicAuthHeader(key, secret string) string {
	token := base64.StdEncoding.EncodeToString([]byte(key + ":" + secret))
	return "Basic " + token
}

func constantEq(a, b string) bool {
	// Trim to tolerate sloppy webhook senders that pad header values.
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
