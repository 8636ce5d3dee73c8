package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"scansync/pkg/buzzheavier"

	"github.com/spf13/viper"
)

// fakeRemote is an in-memory stand-in for the object store API. It speaks
// just enough of the protocol for the client: account lookup, container
// listing, directory creation with 409 on duplicates, and object PUT.
type fakeRemote struct {
	mu     sync.Mutex
	nextID int
	dirs   map[string]map[string]string // parentID -> name -> dirID
	files  map[string]map[string]int64  // dirID -> name -> size

	putCalls    int
	createCalls int
	failPuts    int // fail this many PUTs before succeeding
	rejectAuth  bool
	putGate     chan struct{} // when set, PUTs wait here before completing
	putStarted  chan struct{} // signals each PUT arriving at the gate

	server *httptest.Server
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{
		dirs:  map[string]map[string]string{"root": {}},
		files: map[string]map[string]int64{"root": {}},
	}
	f.server = httptest.NewServer(f)
	return f
}

func (f *fakeRemote) Close() { f.server.Close() }

func (f *fakeRemote) client() *buzzheavier.Client {
	c, err := buzzheavier.NewClient(f.server.URL, f.server.URL, "test-token", 5*time.Second)
	if err != nil {
		panic(err)
	}
	return c
}

func (f *fakeRemote) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rejectAuth {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"message": "invalid token"})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/account/me":
		json.NewEncoder(w).Encode(map[string]string{"id": "acct", "name": "tester", "rootId": "root"})
	case r.Method == http.MethodGet && r.URL.Path == "/account/storage":
		json.NewEncoder(w).Encode(map[string]int64{"storageUsed": 0, "storageTotal": 1 << 40})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/fs/"):
		f.handleList(w, strings.TrimPrefix(r.URL.Path, "/fs/"))
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/fs/"):
		f.handleCreate(w, r, strings.TrimPrefix(r.URL.Path, "/fs/"))
	case r.Method == http.MethodPut:
		f.handlePut(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRemote) handleList(w http.ResponseWriter, dirID string) {
	children, ok := f.dirs[dirID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	type entry struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Size        int64  `json:"size"`
		IsDirectory bool   `json:"isDirectory"`
	}
	out := []entry{}
	for name, id := range children {
		out = append(out, entry{ID: id, Name: name, IsDirectory: true})
	}
	for name, size := range f.files[dirID] {
		out = append(out, entry{Name: name, Size: size})
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"children": out})
}

func (f *fakeRemote) handleCreate(w http.ResponseWriter, r *http.Request, parentID string) {
	f.createCalls++
	children, ok := f.dirs[parentID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	if _, exists := children[body.Name]; exists {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "directory already exists"})
		return
	}

	f.nextID++
	id := "d" + strconv.Itoa(f.nextID)
	children[body.Name] = id
	f.dirs[id] = map[string]string{}
	f.files[id] = map[string]int64{}
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

func (f *fakeRemote) handlePut(w http.ResponseWriter, r *http.Request) {
	f.putCalls++
	if f.putGate != nil {
		gate := f.putGate
		select {
		case f.putStarted <- struct{}{}:
		default:
		}
		f.mu.Unlock()
		<-gate
		f.mu.Lock()
	}
	if f.failPuts > 0 {
		f.failPuts--
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"message": "transient upstream error"})
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) != 2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	dirID, name := parts[0], parts[1]
	if _, ok := f.files[dirID]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	data, _ := io.ReadAll(r.Body)
	f.files[dirID][name] = int64(len(data))
	json.NewEncoder(w).Encode(map[string]interface{}{"id": "f1", "name": name, "size": len(data)})
}

// lookup walks a directory chain from the root, returning the deepest id.
func (f *fakeRemote) lookup(names ...string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "root"
	for _, name := range names {
		next, ok := f.dirs[id][name]
		if !ok {
			return "", false
		}
		id = next
	}
	return id, true
}

func (f *fakeRemote) fileSize(dirID, name string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	size, ok := f.files[dirID][name]
	return size, ok
}

// seedFile plants an object without going through the upload path.
func (f *fakeRemote) seedFile(dirID, name string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[dirID][name] = size
}

// gatePuts holds every PUT open until release is called. The returned
// channel reports each transfer reaching the gate.
func (f *fakeRemote) gatePuts() (release func(), started <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	arrivals := make(chan struct{}, 16)
	f.putGate = gate
	f.putStarted = arrivals
	return func() { close(gate) }, arrivals
}

func (f *fakeRemote) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls
}

func newTestHolder(overrides map[string]interface{}) *ConfigHolder {
	conf := viper.New()
	conf.Set("sync.create_delay_ms", 1)
	for k, v := range overrides {
		conf.Set(k, v)
	}
	return NewConfigHolder(conf)
}
