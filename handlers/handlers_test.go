package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cardex-server/models"
	"cardex-server/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handlers-secret"

type testServer struct {
	t        *testing.T
	router   http.Handler
	store    *services.MemoryCardStore
	sessions *services.SessionManager
}

func newTestServer(t *testing.T, redisClient *redis.Client) *testServer {
	t.Helper()
	store := services.NewMemoryCardStore()
	cardService := services.NewCardService(store, redisClient, nil, nil)
	ledger := services.NewSavedContactsLedger(services.NewMemoryLedgerStore(), cardService)
	sessions := services.NewSessionManager(cardService, ledger, nil, time.Hour)

	ctx := context.Background()
	for _, c := range []models.Card{
		{ID: "alice", Name: "Alice Tan", Role: "Software Engineer", Company: "Acme"},
		{ID: "bob", Name: "Bob Lim", Role: "Doctor", Company: "General Hospital", Color: "#FF0000"},
		{ID: "carol", Name: "Carol Ng", Role: "Teacher", Company: "Acme School"},
	} {
		require.NoError(t, store.Replace(ctx, c))
	}

	router := NewRouter(cardService, ledger, sessions, RouterOptions{
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	return &testServer{t: t, router: router, store: store, sessions: sessions}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userID": userID,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (s *testServer) do(userID, method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(s.t, userID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["code"].(string)
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do("", http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]models.CategoryDescriptor](t, rec)
	assert.Len(t, body["categories"], len(models.Categories))

	rec = s.do("", http.MethodGet, "/cards", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do("alice", http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCardsFilters(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name    string
		path    string
		wantIDs []string
	}{
		{name: "all", path: "/cards", wantIDs: []string{"alice", "bob", "carol"}},
		{name: "text matches company", path: "/cards?q=acme", wantIDs: []string{"alice", "carol"}},
		{name: "category", path: "/cards?category=Doctor", wantIDs: []string{"bob"}},
		{name: "text and category", path: "/cards?q=acme&category=Education", wantIDs: []string{"carol"}},
		{name: "no match", path: "/cards?q=zzz", wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do("alice", http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[CatalogResponse](t, rec)
			got := []string{}
			for _, c := range resp.Cards {
				got = append(got, c.ID)
			}
			assert.Equal(t, tt.wantIDs, got)
			assert.Equal(t, 3, resp.Total)
		})
	}

	rec := s.do("alice", http.MethodGet, "/cards?category=Wizard", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCardsDecoratesCategoryAndColor(t *testing.T) {
	s := newTestServer(t, nil)
	resp := decode[CatalogResponse](t, s.do("alice", http.MethodGet, "/cards", nil))
	byID := map[string]models.Card{}
	for _, c := range resp.Cards {
		byID[c.ID] = c
	}
	assert.Equal(t, models.CategoryTech, byID["alice"].Category)
	assert.Equal(t, models.DefaultCardColor, byID["alice"].Color)
	assert.Equal(t, "#FF0000", byID["bob"].Color)
}

func TestPutMyCardRefreshesCatalog(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, s.do("bob", http.MethodGet, "/cards", nil).Code)

	rec := s.do("alice", http.MethodPut, "/cards/me", models.Card{Name: "Alice Tan", Role: "Artist", Company: "Studio"})
	require.Equal(t, http.StatusOK, rec.Code)
	card := decode[models.Card](t, rec)
	assert.Equal(t, "alice", card.ID)
	assert.Equal(t, models.CategoryArtist, card.Category)

	resp := decode[CatalogResponse](t, s.do("bob", http.MethodGet, "/cards?category=Artist", nil))
	require.Len(t, resp.Cards, 1)
	assert.Equal(t, "alice", resp.Cards[0].ID)

	rec = s.do("alice", http.MethodPut, "/cards/me", models.Card{ID: "bob", Name: "Mallory"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do("alice", http.MethodPut, "/cards/me", models.Card{Name: "Alice", Color: "teal"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCardAndQR(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("alice", http.MethodGet, "/cards/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.CategoryDoctor, decode[models.Card](t, rec).Category)

	rec = s.do("alice", http.MethodGet, "/cards/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do("alice", http.MethodGet, "/cards/bob/qr", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = s.do("alice", http.MethodGet, "/cards/bob/qr?size=5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactsLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("alice", http.MethodPost, "/contacts", map[string]string{"card_id": "bob"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, string(models.Added), decode[map[string]string](t, rec)["result"])

	rec = s.do("alice", http.MethodPost, "/contacts", map[string]string{"card_id": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.AlreadyPresent), decode[map[string]string](t, rec)["result"])

	rec = s.do("alice", http.MethodPost, "/contacts", map[string]string{"card_id": "alice"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "SELF_EXCHANGE", errorCode(t, rec))

	rec = s.do("alice", http.MethodPost, "/contacts", map[string]string{"card_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ids := decode[SavedContactsResponse](t, s.do("alice", http.MethodGet, "/contacts", nil))
	assert.Equal(t, []string{"bob"}, ids.CardIDs)

	saved := decode[SavedCardsResponse](t, s.do("alice", http.MethodGet, "/contacts/cards", nil))
	require.Len(t, saved.Cards, 1)
	assert.Equal(t, "Bob Lim", saved.Cards[0].Name)

	rec = s.do("alice", http.MethodDelete, "/contacts/bob", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	ids = decode[SavedContactsResponse](t, s.do("alice", http.MethodGet, "/contacts", nil))
	assert.Empty(t, ids.CardIDs)
}

func TestExchangeOverQR(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("bob", http.MethodPost, "/exchanges", map[string]string{"transport": "qr"})
	require.Equal(t, http.StatusCreated, rec.Code)
	presented := decode[StartExchangeResponse](t, rec)
	assert.Equal(t, models.StatePresenting, presented.Exchange.State)
	assert.Equal(t, "bob", presented.Presentation.Text)

	rec = s.do("alice", http.MethodPost, "/exchanges", map[string]string{"transport": "qr"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[StartExchangeResponse](t, rec).Exchange.ID

	rec = s.do("alice", http.MethodPost, "/exchanges/"+id+"/detect", services.DetectPayload{Text: presented.Presentation.Text})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[models.ExchangeSnapshot](t, rec)
	assert.Equal(t, models.StateDetected, snap.State)
	assert.Equal(t, "bob", snap.DetectedID)

	rec = s.do("alice", http.MethodPost, "/exchanges/"+id+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[models.ExchangeSnapshot](t, rec)
	assert.Equal(t, models.StateSaved, snap.State)
	assert.Equal(t, models.Added, snap.Result)

	rec = s.do("alice", http.MethodPost, "/exchanges/"+id+"/resolve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	ids := decode[SavedContactsResponse](t, s.do("alice", http.MethodGet, "/contacts", nil))
	assert.Equal(t, []string{"bob"}, ids.CardIDs)

	rec = s.do("alice", http.MethodDelete, "/exchanges/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateIdle, decode[models.ExchangeSnapshot](t, rec).State)

	rec = s.do("alice", http.MethodGet, "/exchanges/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExchangeScan(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name      string
		transport models.Transport
		payload   services.DetectPayload
		wantState models.ExchangeState
		wantCode  string
	}{
		{
			name:      "nfc saves",
			transport: models.TransportNFC,
			payload:   services.DetectPayload{NDEF: services.EncodeNDEFText("carol", "en")},
			wantState: models.StateSaved,
		},
		{
			name:      "gesture saves",
			transport: models.TransportGesture,
			payload:   services.DetectPayload{Bundle: map[string]string{services.GestureCardKey: "bob"}},
			wantState: models.StateSaved,
		},
		{
			name:      "malformed ndef",
			transport: models.TransportNFC,
			payload:   services.DetectPayload{NDEF: []byte{0x01}},
			wantState: models.StateFailed,
			wantCode:  "MALFORMED_PAYLOAD",
		},
		{
			name:      "own card",
			transport: models.TransportQR,
			payload:   services.DetectPayload{Text: "alice"},
			wantState: models.StateFailed,
			wantCode:  "SELF_EXCHANGE",
		},
		{
			name:      "unknown card",
			transport: models.TransportQR,
			payload:   services.DetectPayload{Text: "ghost"},
			wantState: models.StateFailed,
			wantCode:  "NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do("alice", http.MethodPost, "/exchanges/scan", map[string]any{
				"transport": tt.transport,
				"payload":   tt.payload,
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			snap := decode[models.ExchangeSnapshot](t, rec)
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, tt.wantCode, snap.ErrorCode)
			if tt.wantState == models.StateFailed {
				assert.NotEmpty(t, snap.Reason)
			}
		})
	}

	rec := s.do("alice", http.MethodPost, "/exchanges/scan", map[string]any{"transport": "smoke"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExchangeTransportFailure(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do("alice", http.MethodPost, "/exchanges", map[string]string{"transport": "nfc"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[StartExchangeResponse](t, rec).Exchange.ID

	rec = s.do("alice", http.MethodPost, "/exchanges/"+id+"/fail", map[string]string{"reason": "tag lost"})
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[models.ExchangeSnapshot](t, rec)
	assert.Equal(t, models.StateFailed, snap.State)
	assert.Contains(t, snap.Reason, "tag lost")

	rec = s.do("alice", http.MethodPost, "/exchanges/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StateIdle, decode[models.ExchangeSnapshot](t, rec).State)

	rec = s.do("bob", http.MethodPost, "/exchanges/"+id+"/detect", services.DetectPayload{Text: "carol"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExchangeLookupDoesNotOpenSession(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do("alice", http.MethodGet, "/exchanges/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do("alice", http.MethodDelete, "/exchanges/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Zero(t, s.sessions.Len())
}

func TestMapAnnotations(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, s.store.Replace(ctx, models.Card{ID: "far", Name: "Far", Role: "Doctor", Location: models.NewGeoPoint(3.139, 101.6869)}))
	require.NoError(t, s.store.Replace(ctx, models.Card{ID: "near", Name: "Near", Role: "Doctor", Location: models.NewGeoPoint(1.29, 103.85)}))

	rec := s.do("alice", http.MethodGet, "/map/annotations?lat=1.3521&lon=103.8198&category=Doctor", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AnnotationsResponse](t, rec)
	require.Len(t, resp.Annotations, 2)
	assert.Equal(t, "near", resp.Annotations[0].CardID)
	assert.Equal(t, "far", resp.Annotations[1].CardID)
	assert.Contains(t, resp.Annotations[1].DistanceText, "kms")

	rec = s.do("alice", http.MethodGet, "/map/annotations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[AnnotationsResponse](t, rec).Annotations, 2)

	rec = s.do("alice", http.MethodGet, "/map/annotations?lat=95&lon=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapNearby(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newTestServer(t, client)

	rec := s.do("alice", http.MethodPut, "/cards/me", models.Card{Name: "Alice", Role: "Engineer", Location: models.NewGeoPoint(1.3521, 103.8198)})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do("bob", http.MethodPut, "/cards/me", models.Card{Name: "Bob", Role: "Doctor", Location: models.NewGeoPoint(1.3571, 103.8198)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do("alice", http.MethodGet, "/map/nearby?lat=1.3521&lon=103.8198&radius=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[NearbyCardsResponse](t, rec)
	require.Len(t, resp.NearbyCards, 1)
	assert.Equal(t, "bob", resp.NearbyCards[0].CardID)

	rec = s.do("alice", http.MethodGet, "/map/nearby", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapNearbyWithoutGeoIndex(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do("alice", http.MethodGet, "/map/nearby?lat=1&lon=1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDeleteMyCard(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do("alice", http.MethodPost, "/contacts", map[string]string{"card_id": "bob"}).Code)

	rec := s.do("alice", http.MethodDelete, "/cards/me", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, open := s.sessions.Get("alice")
	assert.False(t, open)

	assert.Equal(t, http.StatusNotFound, s.do("bob", http.MethodGet, "/cards/alice", nil).Code)
	ids := decode[SavedContactsResponse](t, s.do("alice", http.MethodGet, "/contacts", nil))
	assert.Empty(t, ids.CardIDs)
}

func TestSessionOpenClose(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do("alice", http.MethodPost, "/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[SessionResponse](t, rec).UserID)
	assert.Equal(t, 1, s.sessions.Len())

	rec = s.do("alice", http.MethodDelete, "/session", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.sessions.Len())
}
