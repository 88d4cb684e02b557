package sms_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"freight/internal/adapters/out/sms"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) sms.Config {
	return sms.Config{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15005550006",
		BaseURL:    baseURL,
	}
}

func TestNewTwilioSender_RequiresCredentials(t *testing.T) {
	_, err := sms.NewTwilioSender(sms.Config{AccountSID: "AC123"}, nil)

	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Contains(t, err.Error(), "authToken")
	assert.Contains(t, err.Error(), "from")
}

func TestSendSMS_PostsForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		assert.Equal(t, "idem-key", r.Header.Get("I-Twilio-Idempotency-Token"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "+14155550100", r.PostForm.Get("To"))
		assert.Equal(t, "+15005550006", r.PostForm.Get("From"))
		assert.Equal(t, "running late", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer server.Close()

	sender, err := sms.NewTwilioSender(testConfig(server.URL), server.Client())
	require.NoError(t, err)

	sid, err := sender.SendSMS(t.Context(), "+14155550100", "running late", "idem-key")

	require.NoError(t, err)
	assert.Equal(t, "SM42", sid)
}

func TestSendSMS_RejectedNumberIsNonRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer server.Close()

	sender, err := sms.NewTwilioSender(testConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = sender.SendSMS(t.Context(), "+1", "running late", "idem-key")

	require.Error(t, err)
	assert.True(t, workflow.IsNonRetryable(err))
	assert.Contains(t, err.Error(), "21211")
}

func TestSendSMS_OutageIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender, err := sms.NewTwilioSender(testConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = sender.SendSMS(t.Context(), "+14155550100", "running late", "idem-key")

	require.Error(t, err)
	assert.False(t, workflow.IsNonRetryable(err))
}

func TestSendSMS_MissingRecipient(t *testing.T) {
	sender, err := sms.NewTwilioSender(testConfig("http://127.0.0.1:1"), nil)
	require.NoError(t, err)

	_, err = sender.SendSMS(t.Context(), "", "running late", "idem-key")

	assert.True(t, workflow.IsNonRetryable(err))
}
