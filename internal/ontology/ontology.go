package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/biopath-backend/internal/platform/envutil"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

// Term is a Gene Ontology term as served by QuickGO. ParentIDs holds the
// is-a ancestor ids QuickGO reports; the API serves the full upward closure
// rather than direct parents only.
type Term struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Definition string   `json:"definition,omitempty"`
	Obsolete   bool     `json:"obsolete,omitempty"`
	ParentIDs  []string `json:"parent_ids,omitempty"`
}

// Service resolves GO term codes. Lookups hit a cache first; misses go to
// the QuickGO REST API.
type Service interface {
	GetTerm(ctx context.Context, id string) (*Term, error)
	Roots(ctx context.Context) ([]Term, error)
}

// The three GO aspect roots every term traces up to.
var goAspectRoots = []string{"GO:0008150", "GO:0003674", "GO:0005575"}

type service struct {
	http    *http.Client
	rdb     *redis.Client
	log     *logger.Logger
	baseURL string
	ttl     time.Duration
}

// New builds the QuickGO-backed service. rdb may be nil; lookups then skip
// the cache tier entirely.
func New(log *logger.Logger, rdb *redis.Client) Service {
	return &service{
		http:    &http.Client{Timeout: time.Duration(envutil.Int("QUICKGO_TIMEOUT_SECONDS", 15)) * time.Second},
		rdb:     rdb,
		log:     log.With("service", "Ontology"),
		baseURL: envutil.Str("QUICKGO_BASE_URL", "https://www.ebi.ac.uk/QuickGO/services"),
		ttl:     time.Duration(envutil.Int("QUICKGO_CACHE_TTL_HOURS", 24*7)) * time.Hour,
	}
}

func (s *service) GetTerm(ctx context.Context, id string) (*Term, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "GO:") {
		return nil, fmt.Errorf("ontology: malformed term id %q", id)
	}

	cacheKey := "ontology:term:" + id
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			var t Term
			if json.Unmarshal(raw, &t) == nil {
				return &t, nil
			}
		}
	}

	t, err := s.fetchTerm(ctx, id)
	if err != nil {
		return nil, err
	}
	if parents, err := s.fetchAncestors(ctx, id); err != nil {
		s.log.Warn("ontology ancestor lookup failed", "term", id, "error", err)
	} else {
		t.ParentIDs = parents
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(t); err == nil {
			if err := s.rdb.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
				s.log.Warn("ontology cache write failed", "term", id, "error", err)
			}
		}
	}
	return t, nil
}

func (s *service) fetchTerm(ctx context.Context, id string) (*Term, error) {
	endpoint := fmt.Sprintf("%s/ontology/go/terms/%s", s.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ontology: quickgo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ontology: read quickgo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ontology: quickgo status %d for %s", resp.StatusCode, id)
	}

	var parsed struct {
		Results []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			IsObsolete bool   `json:"isObsolete"`
			Definition struct {
				Text string `json:"text"`
			} `json:"definition"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ontology: parse quickgo response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("ontology: term %s not found", id)
	}
	r := parsed.Results[0]
	return &Term{
		ID:         r.ID,
		Name:       r.Name,
		Definition: r.Definition.Text,
		Obsolete:   r.IsObsolete,
	}, nil
}

func (s *service) fetchAncestors(ctx context.Context, id string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/ontology/go/terms/%s/ancestors?relations=is_a", s.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ontology: quickgo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("ontology: read quickgo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ontology: quickgo status %d for %s ancestors", resp.StatusCode, id)
	}

	var parsed struct {
		Results []struct {
			Ancestors []string `json:"ancestors"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ontology: parse quickgo response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}
	return parsed.Results[0].Ancestors, nil
}

// Roots returns the GO aspect roots, resolved through the same cache as any
// other term.
func (s *service) Roots(ctx context.Context) ([]Term, error) {
	out := make([]Term, 0, len(goAspectRoots))
	for _, id := range goAspectRoots {
		t, err := s.GetTerm(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
