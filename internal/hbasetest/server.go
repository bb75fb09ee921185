// Package hbasetest runs an in-memory REST gateway that implements the
// scanner resources, for tests.
package hbasetest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
)

// DefaultBatch is the page size used when a scanner is created without one.
const DefaultBatch = 100

// Cell is a stored cell. Column is "family:qualifier".
type Cell struct {
	Column    string
	Timestamp int64
	Value     string
}

// CreateRequest is the decoded body of the last scanner creation.
type CreateRequest struct {
	StartRow    string   `json:"startRow"`
	EndRow      string   `json:"endRow"`
	Column      []string `json:"column"`
	Batch       int      `json:"batch"`
	StartTime   int64    `json:"startTime"`
	EndTime     int64    `json:"endTime"`
	MaxVersions int      `json:"maxVersions"`
	Filter      string   `json:"filter"`
}

type storedCell struct {
	key string
	Cell
}

type scannerState struct {
	cells []storedCell
	batch int
}

type failure struct {
	status int
	body   string
}

// Server is a fake gateway. Rows are kept sorted by key.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	tables      map[string]map[string][]Cell
	scanners    map[string]*scannerState
	nextID      int
	creates     []CreateRequest
	fail        map[string]failure
	badLocation bool
	deleted     []string
}

// New starts a fake gateway. Close it when done.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		tables:   make(map[string]map[string][]Cell),
		scanners: make(map[string]*scannerState),
		fail:     make(map[string]failure),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.injectFailures)
	router.PUT("/:table/scanner", s.createScanner)
	router.GET("/:table/scanner/:id", s.nextPage)
	router.DELETE("/:table/scanner/:id", s.deleteScanner)

	s.Server = httptest.NewServer(router)
	return s
}

// AddRow stores cells under key in table.
func (s *Server) AddRow(table, key string, cells ...Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[string][]Cell)
		s.tables[table] = rows
	}
	rows[key] = append(rows[key], cells...)
}

// FailNext makes the next request with method answer status and body.
func (s *Server) FailNext(method string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = failure{status: status, body: body}
}

// OmitLocation makes scanner creation succeed without a Location header.
func (s *Server) OmitLocation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badLocation = true
}

// Creates returns the scanner creation bodies received so far.
func (s *Server) Creates() []CreateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CreateRequest(nil), s.creates...)
}

// OpenScanners returns the number of scanners not yet deleted.
func (s *Server) OpenScanners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scanners)
}

// Deleted returns the ids of deleted scanners in order.
func (s *Server) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

func (s *Server) injectFailures(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.fail[c.Request.Method]
	if ok {
		delete(s.fail, c.Request.Method)
	}
	s.mu.Unlock()
	if ok {
		c.String(f.status, f.body)
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) createScanner(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	start, err1 := base64.StdEncoding.DecodeString(req.StartRow)
	end, err2 := base64.StdEncoding.DecodeString(req.EndRow)
	if err1 != nil || err2 != nil {
		c.String(http.StatusBadRequest, "row bounds must be base64")
		return
	}
	columns := make(map[string]bool, len(req.Column))
	for _, col := range req.Column {
		raw, err := base64.StdEncoding.DecodeString(col)
		if err != nil {
			c.String(http.StatusBadRequest, "columns must be base64")
			return
		}
		columns[string(raw)] = true
	}

	table := c.Param("table")
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		c.String(http.StatusNotFound, "table not found: "+table)
		return
	}
	keys := make([]string, 0, len(rows))
	for k := range rows {
		if bytes.Compare([]byte(k), start) < 0 {
			continue
		}
		if len(end) > 0 && bytes.Compare([]byte(k), end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	state := &scannerState{batch: req.Batch}
	if state.batch <= 0 {
		state.batch = DefaultBatch
	}
	for _, k := range keys {
		for _, cell := range rows[k] {
			if len(columns) > 0 && !columns[cell.Column] && !columns[family(cell.Column)] {
				continue
			}
			state.cells = append(state.cells, storedCell{key: k, Cell: cell})
		}
	}

	s.nextID++
	id := strconv.FormatInt(int64(1700000000000+s.nextID), 10) + "a" + strconv.Itoa(s.nextID)
	s.scanners[id] = state
	s.creates = append(s.creates, req)

	if !s.badLocation {
		c.Header("Location", s.URL+"/"+table+"/scanner/"+id)
	}
	c.Status(http.StatusCreated)
}

type wireCell struct {
	Column    string `json:"column"`
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"$"`
}

type wireRow struct {
	Key  string     `json:"key"`
	Cell []wireCell `json:"Cell"`
}

func (s *Server) nextPage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.scanners[c.Param("id")]
	if !ok {
		c.String(http.StatusNotFound, "scanner not found")
		return
	}
	if len(state.cells) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	n := min(state.batch, len(state.cells))
	page := state.cells[:n]
	state.cells = state.cells[n:]

	var out []wireRow
	enc := base64.StdEncoding.EncodeToString
	for _, sc := range page {
		key := enc([]byte(sc.key))
		if len(out) == 0 || out[len(out)-1].Key != key {
			out = append(out, wireRow{Key: key})
		}
		last := &out[len(out)-1]
		last.Cell = append(last.Cell, wireCell{
			Column:    enc([]byte(sc.Column)),
			Timestamp: sc.Timestamp,
			Value:     enc([]byte(sc.Value)),
		})
	}

	body, _ := json.Marshal(map[string]any{"Row": out})
	c.Data(http.StatusOK, "application/json", body)
}

func (s *Server) deleteScanner(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scanners[id]; !ok {
		c.String(http.StatusNotFound, "scanner not found")
		return
	}
	delete(s.scanners, id)
	s.deleted = append(s.deleted, id)
	c.Status(http.StatusOK)
}

func family(column string) string {
	for i := 0; i < len(column); i++ {
		if column[i] == ':' {
			return column[:i]
		}
	}
	return column
}
