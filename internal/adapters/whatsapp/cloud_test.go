package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-helpdesk/pkg/httputil"
)

func TestNewCloudProviderValidatesArguments(t *testing.T) {
	_, err := NewCloudProvider(nil, "http://x", "pn", "tok")
	assert.Error(t, err)
	_, err = NewCloudProvider(resty.New(), "", "pn", "tok")
	assert.Error(t, err)
	_, err = NewCloudProvider(resty.New(), "http://x", "", "tok")
	assert.Error(t, err)
	_, err = NewCloudProvider(resty.New(), "http://x", "pn", "")
	assert.Error(t, err)
}

func TestCloudProviderSend(t *testing.T) {
	var got cloudTextPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pn-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer srv.Close()

	p, err := NewCloudProvider(resty.New(), srv.URL+"/", "pn-1", "secret")
	require.NoError(t, err)

	res, err := p.Send(context.Background(), OutboundMessage{To: "5511999", Body: "olá"})
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC", res.ExternalID)

	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "individual", got.RecipientType)
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "5511999", got.To)
	assert.Equal(t, "olá", got.Text.Body)
}

func TestCloudProviderSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Recipient phone number not in allowed list","type":"OAuthException","code":131030}}`))
	}))
	defer srv.Close()

	p, err := NewCloudProvider(resty.New(), srv.URL, "pn-1", "secret")
	require.NoError(t, err)

	_, err = p.Send(context.Background(), OutboundMessage{To: "1", Body: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Recipient phone number not in allowed list")
}

func TestCloudProviderSendIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// even a client configured to retry must send once
	p, err := NewCloudProvider(httputil.NewDefaultRestyClient(5*time.Second, true), srv.URL, "pn-1", "secret")
	require.NoError(t, err)

	_, err = p.Send(context.Background(), OutboundMessage{To: "1", Body: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCloudProviderSendWithoutMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[]}`))
	}))
	defer srv.Close()

	p, err := NewCloudProvider(resty.New(), srv.URL, "pn-1", "secret")
	require.NoError(t, err)

	_, err = p.Send(context.Background(), OutboundMessage{To: "1", Body: "hi"})
	assert.Error(t, err)
}

func TestMockProviderSend(t *testing.T) {
	p := NewMockProvider()

	a, err := p.Send(context.Background(), OutboundMessage{To: "1", Body: "hi"})
	require.NoError(t, err)
	b, err := p.Send(context.Background(), OutboundMessage{To: "1", Body: "hi"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a.ExternalID, "mock_"))
	assert.NotEqual(t, a.ExternalID, b.ExternalID)
}
