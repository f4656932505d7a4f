package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/fulfillment-api/internal/model"
	apperrors "github.com/merchantry/fulfillment-api/pkg/errors"
	"github.com/merchantry/fulfillment-api/pkg/logger"
	"github.com/merchantry/fulfillment-api/pkg/security"
)

type fakeIntegrationRepo struct {
	integrations map[model.IntegrationType]*model.StoreIntegration
	shipFrom     *model.ShipFromAddress
}

func (f *fakeIntegrationRepo) GetCredentials(ctx context.Context, storeID uuid.UUID, t model.IntegrationType) (*model.StoreIntegration, error) {
	return f.integrations[t], nil
}

func (f *fakeIntegrationRepo) Get(ctx context.Context, id uuid.UUID) (*model.StoreIntegration, error) {
	for _, integration := range f.integrations {
		if integration.ID == id {
			return integration, nil
		}
	}
	return nil, nil
}

func (f *fakeIntegrationRepo) ListActiveByType(ctx context.Context, t model.IntegrationType) ([]*model.StoreIntegration, error) {
	return nil, nil
}

func (f *fakeIntegrationRepo) LogOperation(ctx context.Context, log *model.IntegrationLog) error {
	return nil
}

func (f *fakeIntegrationRepo) GetDefaultShipFrom(ctx context.Context, storeID uuid.UUID) (*model.ShipFromAddress, error) {
	return f.shipFrom, nil
}

func (f *fakeIntegrationRepo) ListShipFroms(ctx context.Context, storeID uuid.UUID) ([]*model.ShipFromAddress, error) {
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func testEncryptor(t *testing.T) security.Encryptor {
	t.Helper()
	enc, err := security.NewAESEncryptor(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return enc
}

func sealedIntegration(t *testing.T, enc security.Encryptor, integrationType model.IntegrationType, key, secret string) *model.StoreIntegration {
	t.Helper()
	sealedKey, err := enc.Encrypt([]byte(key))
	require.NoError(t, err)
	sealedSecret, err := enc.Encrypt([]byte(secret))
	require.NoError(t, err)
	return &model.StoreIntegration{
		ID:                 uuid.New(),
		StoreID:            uuid.New(),
		IntegrationType:    integrationType,
		APIKeyEncrypted:    sealedKey,
		APISecretEncrypted: sealedSecret,
		Active:             true,
	}
}

func newFixture(t *testing.T) (*Service, *fakeIntegrationRepo, *model.StoreIntegration) {
	t.Helper()
	enc := testEncryptor(t)
	integration := sealedIntegration(t, enc, model.IntegrationShipStationLegacy, "api-key", "api-secret")
	repo := &fakeIntegrationRepo{integrations: map[model.IntegrationType]*model.StoreIntegration{
		model.IntegrationShipStationLegacy: integration,
	}}
	svc := NewService(repo, enc, security.NewBcryptHasher(0), testLogger())
	return svc, repo, integration
}

func TestResolveWebhookAuthBasicWithBcryptHash(t *testing.T) {
	svc, _, integration := newFixture(t)

	hasher := security.NewBcryptHasher(0)
	hash, err := hasher.Hash("webhook-password")
	require.NoError(t, err)
	username := "store-hook"
	integration.ShipStationUsername = &username
	integration.PasswordHash = &hash

	r := httptest.NewRequest("POST", "/webhooks/carrier/x", nil)
	r.SetBasicAuth("store-hook", "webhook-password")

	got, err := svc.ResolveWebhookAuth(context.Background(), integration.StoreID, r)
	require.NoError(t, err)
	assert.Equal(t, integration.ID, got.ID)
}

func TestResolveWebhookAuthBasicWithLegacyPair(t *testing.T) {
	svc, _, integration := newFixture(t)

	r := httptest.NewRequest("POST", "/webhooks/carrier/x", nil)
	r.SetBasicAuth("api-key", "api-secret")

	got, err := svc.ResolveWebhookAuth(context.Background(), integration.StoreID, r)
	require.NoError(t, err)
	assert.Equal(t, integration.ID, got.ID)
}

func TestResolveWebhookAuthHeaderScheme(t *testing.T) {
	svc, _, integration := newFixture(t)

	r := httptest.NewRequest("POST", "/webhooks/carrier/x", nil)
	r.Header.Set("x-api-key", "api-key")
	r.Header.Set("x-api-secret", "api-secret")

	got, err := svc.ResolveWebhookAuth(context.Background(), integration.StoreID, r)
	require.NoError(t, err)
	assert.Equal(t, integration.ID, got.ID)
}

func TestResolveWebhookAuthRejectsBadPassword(t *testing.T) {
	svc, _, integration := newFixture(t)

	r := httptest.NewRequest("POST", "/webhooks/carrier/x", nil)
	r.SetBasicAuth("api-key", "wrong-secret")

	_, err := svc.ResolveWebhookAuth(context.Background(), integration.StoreID, r)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrUnauthorized, appErr.Code)
}

func TestResolveWebhookAuthRejectsMissingCredentials(t *testing.T) {
	svc, _, integration := newFixture(t)

	r := httptest.NewRequest("POST", "/webhooks/carrier/x", nil)

	_, err := svc.ResolveWebhookAuth(context.Background(), integration.StoreID, r)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrUnauthorized, appErr.Code)
}

func TestResolveWebhookAuthUnknownStore(t *testing.T) {
	enc := testEncryptor(t)
	svc := NewService(&fakeIntegrationRepo{integrations: map[model.IntegrationType]*model.StoreIntegration{}}, enc, security.NewBcryptHasher(0), testLogger())

	r := httptest.NewRequest("POST", "/webhooks/carrier/x", nil)
	r.SetBasicAuth("api-key", "api-secret")

	_, err := svc.ResolveWebhookAuth(context.Background(), uuid.New(), r)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrStoreNotFound, appErr.Code)
}

func TestDecryptCredentials(t *testing.T) {
	svc, _, integration := newFixture(t)

	creds, err := svc.DecryptCredentials(integration)
	require.NoError(t, err)
	assert.Equal(t, "api-key", creds.APIKey)
	assert.Equal(t, "api-secret", creds.APISecret)
}

func TestDecryptCredentialsGarbageCiphertext(t *testing.T) {
	svc, _, integration := newFixture(t)
	integration.APIKeyEncrypted = []byte("not ciphertext")

	_, err := svc.DecryptCredentials(integration)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCredentialDecrypt, appErr.Code)
}

func TestIntegrationForPrefersV2(t *testing.T) {
	enc := testEncryptor(t)
	legacy := sealedIntegration(t, enc, model.IntegrationShipStationLegacy, "k1", "s1")
	v2 := sealedIntegration(t, enc, model.IntegrationShipStationV2, "k2", "")
	v2.StoreID = legacy.StoreID
	repo := &fakeIntegrationRepo{integrations: map[model.IntegrationType]*model.StoreIntegration{
		model.IntegrationShipStationLegacy: legacy,
		model.IntegrationShipStationV2:     v2,
	}}
	svc := NewService(repo, enc, security.NewBcryptHasher(0), testLogger())

	got, err := svc.IntegrationFor(context.Background(), legacy.StoreID)
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationShipStationV2, got.IntegrationType)
}

func TestIntegrationForSkipsInactive(t *testing.T) {
	enc := testEncryptor(t)
	legacy := sealedIntegration(t, enc, model.IntegrationShipStationLegacy, "k1", "s1")
	v2 := sealedIntegration(t, enc, model.IntegrationShipStationV2, "k2", "")
	v2.StoreID = legacy.StoreID
	v2.Active = false
	repo := &fakeIntegrationRepo{integrations: map[model.IntegrationType]*model.StoreIntegration{
		model.IntegrationShipStationLegacy: legacy,
		model.IntegrationShipStationV2:     v2,
	}}
	svc := NewService(repo, enc, security.NewBcryptHasher(0), testLogger())

	got, err := svc.IntegrationFor(context.Background(), legacy.StoreID)
	require.NoError(t, err)
	assert.Equal(t, model.IntegrationShipStationLegacy, got.IntegrationType)
}

func TestResolveShipFromPrefersPinnedAddress(t *testing.T) {
	svc, repo, integration := newFixture(t)
	repo.shipFrom = &model.ShipFromAddress{Name: "Default Warehouse"}

	pinned := model.IntegrationConfig{ShipFrom: &model.ShipFromAddress{Name: "Pinned Warehouse"}}
	raw, err := json.Marshal(pinned)
	require.NoError(t, err)
	integration.Configuration = raw

	got, err := svc.ResolveShipFrom(context.Background(), integration)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Pinned Warehouse", got.Name)
}

func TestResolveShipFromFallsBackToStoreDefault(t *testing.T) {
	svc, repo, integration := newFixture(t)
	repo.shipFrom = &model.ShipFromAddress{Name: "Default Warehouse"}

	got, err := svc.ResolveShipFrom(context.Background(), integration)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Default Warehouse", got.Name)
}

func TestResolveShipFromNoneConfigured(t *testing.T) {
	svc, _, integration := newFixture(t)

	got, err := svc.ResolveShipFrom(context.Background(), integration)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBasicAuthHeader(t *testing.T) {
	assert.Equal(t, "Basic a2V5OnNlY3JldA==", BasicAuthHeader("key", "secret"))
}
