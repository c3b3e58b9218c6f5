package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/medisync/internal/domain/entities"
	"github.com/zatekoja/medisync/internal/domain/providers"
)

// fakeDoc is one page the fake browser can serve.
type fakeDoc struct {
	html     string
	body     string
	texts    map[string]string
	elements map[string][]*fakeElement
	loadErr  error
}

type fakeBrowser struct {
	mu         sync.Mutex
	docs       map[string]*fakeDoc
	downloads  map[string][]byte
	pages      []*fakePage
	newPageErr error
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{docs: map[string]*fakeDoc{}, downloads: map[string][]byte{}}
}

func (b *fakeBrowser) NewPage(ctx context.Context) (providers.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	p := &fakePage{browser: b}
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close() error { return nil }

type fakePage struct {
	browser *fakeBrowser
	current *fakeDoc
	url     string
	loads   []string
	closed  bool
}

func (p *fakePage) Load(url string, opts providers.LoadOptions) error {
	p.loads = append(p.loads, url)
	doc, ok := p.browser.docs[url]
	if !ok {
		return errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	if doc.loadErr != nil {
		return doc.loadErr
	}
	p.current = doc
	p.url = url
	return nil
}

func (p *fakePage) FindOne(selector string) (providers.Element, bool) {
	if p.current == nil {
		return nil, false
	}
	els := p.current.elements[selector]
	if len(els) == 0 {
		return nil, false
	}
	return els[0], true
}

func (p *fakePage) FindAll(selector string) []providers.Element {
	if p.current == nil {
		return nil
	}
	var out []providers.Element
	for _, el := range p.current.elements[selector] {
		out = append(out, el)
	}
	return out
}

func (p *fakePage) Text(selector string) (string, bool) {
	if p.current == nil {
		return "", false
	}
	t, ok := p.current.texts[selector]
	return t, ok && t != ""
}

func (p *fakePage) BodyText() (string, bool) {
	if p.current == nil {
		return "", false
	}
	return p.current.body, true
}

func (p *fakePage) HTML() (string, bool) {
	if p.current == nil {
		return "", false
	}
	return p.current.html, true
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Fill(selector, value string) error { return nil }

func (p *fakePage) Press(key string) error { return nil }

func (p *fakePage) WaitForSelector(selector string, timeout time.Duration) bool {
	_, ok := p.FindOne(selector)
	return ok
}

func (p *fakePage) WaitForNetworkIdle(timeout time.Duration) {}

func (p *fakePage) Download(url string) ([]byte, bool) {
	data, ok := p.browser.downloads[url]
	return data, ok
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeElement struct {
	text     string
	attrs    map[string]string
	visible  bool
	clicks   int
	clickErr error
	onClick  func(el *fakeElement)
}

func (e *fakeElement) Text() (string, bool) { return e.text, e.text != "" }

func (e *fakeElement) Attribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func (e *fakeElement) Visible() bool { return e.visible }

func (e *fakeElement) ScrollIntoView() {}

func (e *fakeElement) Click(timeout time.Duration) error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	if e.onClick != nil {
		e.onClick(e)
	}
	return nil
}

// fakeLLM answers completions through a function and records every request.
type fakeLLM struct {
	mu       sync.Mutex
	respond  func(req providers.CompletionRequest) (string, error)
	requests []providers.CompletionRequest
}

func (f *fakeLLM) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond == nil {
		return "{}", nil
	}
	return f.respond(req)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakePDFExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakePDFExtractor) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

// memoryPlanRepo is an in-memory InsurancePlanRepository.
type memoryPlanRepo struct {
	mu          sync.Mutex
	plans       map[string]*entities.InsurancePlan
	insertErr   error
	upsertErr   error
	readErr     error
	inserts     int
	upserts     int
	deactivated []string
}

func newMemoryPlanRepo(existing ...*entities.InsurancePlan) *memoryPlanRepo {
	r := &memoryPlanRepo{plans: map[string]*entities.InsurancePlan{}}
	for _, p := range existing {
		cp := *p
		r.plans[p.ID] = &cp
	}
	return r
}

func (r *memoryPlanRepo) GetActiveByProvider(ctx context.Context, providerName string) (map[string]*entities.InsurancePlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readErr != nil {
		return nil, r.readErr
	}
	out := map[string]*entities.InsurancePlan{}
	for id, p := range r.plans {
		if p.ProviderName == providerName && p.IsActive {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *memoryPlanRepo) InsertBatch(ctx context.Context, plans []*entities.InsurancePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserts++
	for _, p := range plans {
		cp := *p
		r.plans[p.ID] = &cp
	}
	return nil
}

func (r *memoryPlanRepo) UpsertBatch(ctx context.Context, plans []*entities.InsurancePlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
	for _, p := range plans {
		cp := *p
		r.plans[p.ID] = &cp
	}
	return nil
}

func (r *memoryPlanRepo) SetInactive(ctx context.Context, ids []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		if p, ok := r.plans[id]; ok && p.IsActive {
			p.IsActive = false
			n++
			r.deactivated = append(r.deactivated, id)
		}
	}
	sort.Strings(r.deactivated)
	return n, nil
}

func (r *memoryPlanRepo) Count(ctx context.Context, providerName string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.plans {
		if p.IsActive && (providerName == "" || p.ProviderName == providerName) {
			n++
		}
	}
	return n, nil
}

func (r *memoryPlanRepo) get(id string) *entities.InsurancePlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plans[id]
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: map[string]bool{}} }

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (providers.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, providers.ErrLockNotAcquired
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return &fakeLock{locks: l, key: key}, nil
}

type fakeLock struct {
	locks *fakeLocks
	key   string
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.locks.mu.Lock()
	defer l.locks.mu.Unlock()
	delete(l.locks.held, l.key)
	l.locks.released = append(l.locks.released, l.key)
	return nil
}

type fakeIndexer struct {
	indexed []string
	removed []string
}

func (f *fakeIndexer) IndexPlans(ctx context.Context, plans []*entities.InsurancePlan) error {
	for _, p := range plans {
		f.indexed = append(f.indexed, p.ID)
	}
	return nil
}

func (f *fakeIndexer) RemovePlans(ctx context.Context, ids []string) error {
	f.removed = append(f.removed, ids...)
	return nil
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

type fakeSheets struct {
	values [][]string
	err    error
	reads  int
}

func (f *fakeSheets) ReadAll(ctx context.Context, spreadsheetID, worksheet string) ([][]string, error) {
	f.reads++
	return f.values, f.err
}

type fakeFiles struct {
	modified time.Time
	err      error
}

func (f *fakeFiles) ModifiedTime(ctx context.Context, fileID string) (time.Time, error) {
	return f.modified, f.err
}

// memoryClinicRepo is an in-memory ClinicRepository.
type memoryClinicRepo struct {
	mu        sync.Mutex
	clinics   map[string]*entities.Clinic
	order     []string
	upsertErr error
	batches   int
}

func newMemoryClinicRepo(existing ...*entities.Clinic) *memoryClinicRepo {
	r := &memoryClinicRepo{clinics: map[string]*entities.Clinic{}}
	for _, c := range existing {
		cp := *c
		r.clinics[c.ID] = &cp
		r.order = append(r.order, c.ID)
	}
	return r
}

func (r *memoryClinicRepo) UpsertSheetBatch(ctx context.Context, clinics []*entities.Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.batches++
	for _, c := range clinics {
		if current, ok := r.clinics[c.ID]; ok {
			current.Name = c.Name
			current.FacilityType = c.FacilityType
			current.Address = c.Address
			current.City = c.City
			current.State = c.State
			current.Postcode = c.Postcode
			current.Is24Hours = c.Is24Hours
			current.UpdatedAt = c.UpdatedAt
			continue
		}
		cp := *c
		r.clinics[c.ID] = &cp
		r.order = append(r.order, c.ID)
	}
	return nil
}

func (r *memoryClinicRepo) pending() []*entities.Clinic {
	var out []*entities.Clinic
	for _, id := range r.order {
		c := r.clinics[id]
		if c.IsActive && c.EnrichmentStatus == entities.EnrichmentPending {
			out = append(out, c)
		}
	}
	return out
}

func (r *memoryClinicRepo) CountPendingEnrichment(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending()), nil
}

func (r *memoryClinicRepo) ListPendingEnrichment(ctx context.Context, limit int) ([]*entities.Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending()
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryClinicRepo) MarkEnriched(ctx context.Context, id string, e *entities.ClinicEnrichment, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clinics[id]
	if !ok {
		return errors.New("clinic not found")
	}
	c.Latitude, c.Longitude, c.Phone, c.GoogleRating = e.Latitude, e.Longitude, e.Phone, e.GoogleRating
	c.EnrichmentStatus = entities.EnrichmentEnriched
	c.EnrichmentAttemptedAt = &at
	return nil
}

func (r *memoryClinicRepo) MarkEnrichmentFailed(ctx context.Context, id string, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clinics[id]
	if !ok {
		return errors.New("clinic not found")
	}
	c.EnrichmentStatus = entities.EnrichmentFailed
	c.EnrichmentError = &reason
	c.EnrichmentAttemptedAt = &at
	return nil
}

func (r *memoryClinicRepo) get(id string) *entities.Clinic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clinics[id]
}

// fakeEnricher answers lookups by clinic name.
type fakeEnricher struct {
	results map[string]*entities.ClinicEnrichment
	errs    map[string]error
	queries []entities.ClinicQuery
}

func (f *fakeEnricher) Enrich(ctx context.Context, q entities.ClinicQuery) (*entities.ClinicEnrichment, error) {
	f.queries = append(f.queries, q)
	if err := f.errs[q.Name]; err != nil {
		return nil, err
	}
	return f.results[q.Name], nil
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }
func boolPtrOf(b bool) *bool { return &b }
func intPtr(i int) *int { return &i }
