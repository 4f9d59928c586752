// Package query implements the C5 query & filter service: interactive reads
// over molecules, properties, and library memberships.
package query

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cro-platform/molcore/internal/domain/molecule"
	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

const (
	// visibilityCacheTTL bounds how long a single actor/molecule visibility
	// decision is trusted before the authorization collaborator is asked again.
	visibilityCacheTTL = 30 * time.Second

	defaultSimilarityThreshold = 0.7
	defaultSubstructureLimit   = 100
)

// Authorizer is the narrow capability interface the query service calls to
// decide what an actor may see. Content of roles lives entirely outside the
// core; the service only ever invokes these two predicates.
type Authorizer interface {
	CanSee(ctx context.Context, actor common.UserID, moleculeID common.ID) (bool, error)
	CanWrite(ctx context.Context, actor common.UserID, entity string) (bool, error)
}

// Cache is the subset of a key-value store the query service uses to keep
// repeated pagination and visibility calls inside the latency budget.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
}

// Logger matches the narrow structured-logging interface used throughout the
// application layer.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// cursorState is the decoded form of an opaque list cursor: the sort key plus
// page position, so a cursor survives being handed back by a caller that
// cannot see (and must not depend on) its internal shape.
type cursorState struct {
	Page      int    `json:"p"`
	PageSize  int    `json:"s"`
	SortBy    string `json:"b"`
	SortOrder string `json:"o"`
}

// encodeCursor produces the opaque cursor a caller should present to fetch
// the next page of the same query.
func encodeCursor(req mtypes.MoleculeSearchRequest) string {
	cs := cursorState{
		Page:      req.Page + 1,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	b, _ := json.Marshal(cs)
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeCursor applies an opaque cursor to req, overriding its pagination
// fields. An empty or malformed cursor is rejected with invalid_cursor rather
// than silently falling back to page 1 — the spec requires invalid cursors
// never be retried blindly.
func decodeCursor(cursor string, req *mtypes.MoleculeSearchRequest) error {
	if cursor == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return errors.New(errors.CodeInvalidParam, "invalid_cursor").WithDetail(err.Error())
	}
	var cs cursorState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return errors.New(errors.CodeInvalidParam, "invalid_cursor").WithDetail(err.Error())
	}
	if cs.Page < 1 || cs.PageSize < 1 {
		return errors.New(errors.CodeInvalidParam, "invalid_cursor").WithDetail("out of range")
	}
	req.Page = cs.Page
	req.PageSize = cs.PageSize
	req.SortBy = cs.SortBy
	req.SortOrder = cs.SortOrder
	return nil
}

// ListRequest is the C5 list() input: the conjunctive filter described in
// mtypes.MoleculeSearchRequest, plus the requesting actor (for visibility)
// and an optional opaque cursor superseding Page/PageSize.
type ListRequest struct {
	mtypes.MoleculeSearchRequest
	Actor  common.UserID
	Cursor string
}

// ListResponse wraps the filtered, visibility-trimmed page plus the cursor
// for the next page.
type ListResponse struct {
	Items      []mtypes.MoleculeDTO
	Total      int64
	NextCursor string
}

// MoleculeDetail is the C5 get() output: canonical structure, observations
// grouped by source, visible library memberships, and current state.
type MoleculeDetail struct {
	Molecule     mtypes.MoleculeDTO
	Observations map[string][]mtypes.PropertyObservation
	Libraries    []common.ID
	State        mtypes.MoleculeState
}

// Service is the C5 query & filter service.
type Service struct {
	molecules *molecule.Service
	auth      Authorizer
	cache     Cache
	logger    Logger
}

// NewService constructs the query service. auth and cache may be nil: with a
// nil Authorizer every result is visible (suitable for trusted internal
// callers); with a nil Cache, visibility is re-checked on every call.
func NewService(molecules *molecule.Service, auth Authorizer, cache Cache, logger Logger) *Service {
	return &Service{molecules: molecules, auth: auth, cache: cache, logger: logger}
}

// List executes the C5 list() operation: validates the conjunctive filter,
// dispatches to the matching engine (similarity, substructure, or the plain
// property/membership/flag/text path), then trims the page down to what the
// actor is authorized to see.
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	searchReq := req.MoleculeSearchRequest
	if searchReq.Page == 0 {
		searchReq.Page = 1
	}
	if searchReq.PageSize == 0 {
		searchReq.PageSize = 20
	}
	if err := decodeCursor(req.Cursor, &searchReq); err != nil {
		return nil, err
	}

	var (
		page *mtypes.MoleculeSearchResponse
		err  error
	)

	switch {
	case searchReq.Structure != nil && searchReq.MinSimilarity != nil:
		page, err = s.listBySimilarity(ctx, searchReq)
	case searchReq.AsOfSequence != 0:
		page, err = s.molecules.SnapshotForQuery(ctx, searchReq)
	default:
		page, err = s.molecules.SearchMolecules(ctx, searchReq)
	}
	if err != nil {
		return nil, err
	}

	visible, err := s.filterVisible(ctx, req.Actor, page.Items)
	if err != nil {
		return nil, err
	}

	resp := &ListResponse{Items: visible, Total: page.Total}
	if int64(searchReq.Page*searchReq.PageSize) < page.Total {
		resp.NextCursor = encodeCursor(searchReq)
	}
	return resp, nil
}

// listBySimilarity delegates to the domain service's FindSimilarMolecules,
// which returns the molecule repository's FindSimilar result: the Postgres
// repository scores every stored fingerprint of the requested type by exact
// Tanimoto similarity against the threshold. No separate ANN prefilter stage
// runs on this path.
func (s *Service) listBySimilarity(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	threshold := defaultSimilarityThreshold
	if req.MinSimilarity != nil {
		threshold = *req.MinSimilarity
	}
	fpType := mtypes.FPMorgan
	if req.FingerprintType != nil {
		fpType = *req.FingerprintType
	}
	limit := req.PageSize
	if limit <= 0 {
		limit = 20
	}

	results, err := s.molecules.FindSimilarMolecules(ctx, *req.Structure, threshold, fpType, req.Offset()+limit)
	if err != nil {
		return nil, err
	}

	start := req.Offset()
	if start > len(results) {
		start = len(results)
	}
	end := start + limit
	if end > len(results) {
		end = len(results)
	}

	items := make([]mtypes.MoleculeDTO, 0, end-start)
	for _, m := range results[start:end] {
		items = append(items, toDTO(m))
	}
	resp := common.NewPageResponse(items, int64(len(results)), req.PageRequest)
	return &resp, nil
}

// toDTO projects a domain Molecule onto its cross-layer DTO, mirroring the
// translation the HTTP-facing application service performs at its boundary.
func toDTO(mol *molecule.Molecule) mtypes.MoleculeDTO {
	fps := make(map[mtypes.FingerprintType][]byte, len(mol.Fingerprints))
	for t, fp := range mol.Fingerprints {
		if fp != nil {
			fps[t] = fp.Bits
		}
	}
	return mtypes.MoleculeDTO{
		BaseEntity:       mol.BaseEntity,
		Structure:        mol.Structure,
		CanonicalForm:    mol.CanonicalForm,
		ContentHash:      mol.ContentHash,
		MolecularFormula: mol.MolecularFormula,
		MolecularWeight:  mol.MolecularWeight,
		Name:             mol.Name,
		State:            mol.State,
		Fingerprints:     fps,
	}
}

// Get executes the C5 get() operation.
func (s *Service) Get(ctx context.Context, actor common.UserID, moleculeID common.ID) (*MoleculeDetail, error) {
	visible, err := s.isVisible(ctx, actor, moleculeID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, errors.New(errors.CodeForbidden, "permission_denied")
	}

	mol, err := s.molecules.GetMolecule(ctx, moleculeID)
	if err != nil {
		return nil, err
	}
	obs, err := s.molecules.ObservationsFor(ctx, moleculeID)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]mtypes.PropertyObservation, len(obs))
	for _, o := range obs {
		dto := mtypes.PropertyObservation{
			Name:       o.Name,
			Source:     o.Source,
			Value:      o.Value,
			Units:      o.Units,
			Confidence: o.Confidence,
		}
		grouped[o.Source] = append(grouped[o.Source], dto)
	}

	return &MoleculeDetail{
		Molecule:     toDTO(mol),
		Observations: grouped,
		State:        mol.State,
	}, nil
}

// filterVisible trims items down to the ones the actor is authorized to see,
// consulting the visibility cache before calling the authorization
// collaborator. A nil Authorizer means every item is visible (used for
// trusted internal callers such as the ingestion/prediction pipelines).
func (s *Service) filterVisible(ctx context.Context, actor common.UserID, items []mtypes.MoleculeDTO) ([]mtypes.MoleculeDTO, error) {
	if s.auth == nil {
		return items, nil
	}
	visible := make([]mtypes.MoleculeDTO, 0, len(items))
	for _, item := range items {
		ok, err := s.isVisible(ctx, actor, item.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, item)
		}
	}
	return visible, nil
}

func (s *Service) isVisible(ctx context.Context, actor common.UserID, moleculeID common.ID) (bool, error) {
	if s.auth == nil {
		return true, nil
	}

	cacheKey := fmt.Sprintf("molcore:query:vis:%s:%s", actor, moleculeID)
	if s.cache != nil {
		var cached bool
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	ok, err := s.auth.CanSee(ctx, actor, moleculeID)
	if err != nil {
		s.logger.Warn("visibility check failed", "actor", string(actor), "molecule_id", string(moleculeID), "error", err)
		return false, errors.Wrap(err, errors.CodeInternal, "permission check failed")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, ok, visibilityCacheTTL)
	}
	return ok, nil
}
