package index

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

// fakeEmbeddings serves deterministic vectors: the embedding encodes the
// input length so that equal inputs are nearest neighbors.
func fakeEmbeddings(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var a, b float32
		for _, c := range req.Input {
			a += float32(c % 7)
			b += float32(c % 13)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{a, b, float32(len(req.Input))}}},
		})
	}))
}

func TestDisabledIndexNoOps(t *testing.T) {
	ix := New(nil)
	if ix.Enabled() {
		t.Fatal("index without embedder must be disabled")
	}
	if err := ix.Add("k", "prompt"); err != nil {
		t.Errorf("Add on disabled index: %v", err)
	}
	keys, err := ix.Search("prompt", 3)
	if err != nil || keys != nil {
		t.Errorf("Search on disabled index = %v, %v", keys, err)
	}
	if ix.Len() != 0 {
		t.Errorf("Len = %d, want 0", ix.Len())
	}
}

func TestAddAndSearch(t *testing.T) {
	srv := fakeEmbeddings(t)
	defer srv.Close()

	ix := New(NewEmbedder(srv.URL, "", "test-model"))
	if err := ix.Add("key-fib", "write a fibonacci function"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add("key-csv", "load the csv into a dataframe"); err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ix.Len())
	}

	keys, err := ix.Search("write a fibonacci function", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "key-fib" {
		t.Errorf("Search returned %v, want [key-fib]", keys)
	}
}

func TestAddIsIdempotentPerKey(t *testing.T) {
	srv := fakeEmbeddings(t)
	defer srv.Close()

	ix := New(NewEmbedder(srv.URL, "", "test-model"))
	ix.Add("k", "prompt one")
	ix.Add("k", "prompt one")
	if ix.Len() != 1 {
		t.Errorf("Len = %d, want 1", ix.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	srv := fakeEmbeddings(t)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "embeddings.json")

	ix := New(NewEmbedder(srv.URL, "", "test-model"))
	ix.Add("key-a", "first snippet prompt")
	if err := ix.Save(path, "test-model"); err != nil {
		t.Fatal(err)
	}

	restored := New(NewEmbedder(srv.URL, "", "test-model"))
	if err := restored.Load(path, "test-model"); err != nil {
		t.Fatal(err)
	}
	if restored.Len() != 1 {
		t.Fatalf("Len after load = %d, want 1", restored.Len())
	}

	keys, err := restored.Search("first snippet prompt", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "key-a" {
		t.Errorf("Search after load = %v, want [key-a]", keys)
	}
}

func TestLoadSkipsMismatchedModel(t *testing.T) {
	srv := fakeEmbeddings(t)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "embeddings.json")

	ix := New(NewEmbedder(srv.URL, "", "model-a"))
	ix.Add("key-a", "prompt")
	if err := ix.Save(path, "model-a"); err != nil {
		t.Fatal(err)
	}

	other := New(NewEmbedder(srv.URL, "", "model-b"))
	if err := other.Load(path, "model-b"); err != nil {
		t.Fatal(err)
	}
	if other.Len() != 0 {
		t.Errorf("mismatched-model cache should be skipped, Len = %d", other.Len())
	}
}

func TestReset(t *testing.T) {
	srv := fakeEmbeddings(t)
	defer srv.Close()

	ix := New(NewEmbedder(srv.URL, "", "test-model"))
	ix.Add("k1", "one")
	ix.Add("k2", "two")

	ix.Reset()
	if ix.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", ix.Len())
	}
}
