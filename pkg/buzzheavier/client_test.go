package buzzheavier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, server.URL, "secret-token", 5*time.Second)
	assert.NoError(t, err)
	return client
}

func TestClientSendsBearerToken(t *testing.T) {
	var got string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"id": "acct"})
	})

	_, err := client.GetAccountInfo(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", got)
}

func TestClientUnwrapsDataEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"data": map[string]string{"id": "acct", "name": "tester", "rootId": "root"},
		})
	})

	info, err := client.GetAccountInfo(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "acct", info.ID)
	assert.Equal(t, "root", info.RootID)
}

func TestClientErrorClassification(t *testing.T) {
	status := http.StatusUnauthorized
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"message": "nope"})
	})

	_, err := client.GetAccountInfo(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "nope")

	status = http.StatusConflict
	_, err = client.CreateDirectory(context.Background(), "root", "dup")
	assert.True(t, IsConflict(err))

	status = http.StatusNotFound
	err = client.Get(context.Background(), "/fs/ghost", nil)
	assert.True(t, IsNotFound(err))
}

func TestClientStorageQuotaComputesAvailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int64{"storageUsed": 300, "storageTotal": 1000})
	})

	quota, err := client.GetStorageQuota(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(700), quota.Available)
}

func TestClientUploadTargetEscapesFilename(t *testing.T) {
	client, err := NewClient("https://api.example", "https://up.example", "t", time.Second)
	assert.NoError(t, err)

	target := client.UploadTarget("d42", "Cap 01.png")
	assert.Equal(t, "https://up.example/d42/Cap%2001.png", target)
}

func TestClientCheckExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"children": []map[string]interface{}{
				{"id": "d1", "name": "Cap 01", "isDirectory": true},
				{"name": "p1.jpg", "size": 2048, "isDirectory": false},
			},
		})
	})

	exists, size, err := client.CheckExists(context.Background(), "root", "p1.jpg")
	assert.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(2048), size)

	exists, _, err = client.CheckExists(context.Background(), "root", "p2.jpg")
	assert.NoError(t, err)
	assert.False(t, exists)

	// Directories never satisfy a file existence check.
	exists, _, err = client.CheckExists(context.Background(), "root", "Cap 01")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestClientPutObjectStreamsBody(t *testing.T) {
	var gotBody string
	var gotLength int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotLength = r.ContentLength
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "f1", "name": "p1.jpg", "size": len(gotBody)})
	})

	body := strings.NewReader("image bytes")
	result, err := client.PutObject(context.Background(), client.UploadTarget("d1", "p1.jpg"), body, 11)
	assert.NoError(t, err)
	assert.Equal(t, "image bytes", gotBody)
	assert.Equal(t, int64(11), gotLength)
	assert.Equal(t, int64(11), result.Size)
}

func TestAuthManagerCachesVerdict(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(map[string]string{"id": "acct", "name": "tester", "rootId": "root"})
	})

	auth := NewAuthManager(client, time.Minute)
	ctx := context.Background()

	_, err := auth.Validate(ctx)
	assert.NoError(t, err)
	_, err = auth.Validate(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, auth.IsValid())

	auth.Invalidate()
	_, err = auth.Validate(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAuthManagerRechecksAfterFailure(t *testing.T) {
	var calls int32
	fail := true
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "expired"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "acct"})
	})

	auth := NewAuthManager(client, time.Minute)
	ctx := context.Background()

	_, err := auth.Validate(ctx)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, auth.IsValid())

	// A failed verdict is never cached.
	fail = false
	_, err = auth.Validate(ctx)
	assert.NoError(t, err)
	assert.True(t, auth.IsValid())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
