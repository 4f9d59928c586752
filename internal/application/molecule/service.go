// Package molecule adapts the domain molecule service to the DTO shapes used
// by the HTTP and gRPC interface layers, keeping wire-format concerns out of
// the domain package.
package molecule

import (
	"context"

	domainmol "github.com/cro-platform/molcore/internal/domain/molecule"
	"github.com/cro-platform/molcore/internal/infrastructure/monitoring/logging"
	"github.com/cro-platform/molcore/pkg/types/common"
	mtypes "github.com/cro-platform/molcore/pkg/types/molecule"
)

// Service is the application-facing facade over the molecule domain service.
// Handlers depend on this interface rather than on domainmol.Service directly
// so that gRPC and HTTP transports share one translation layer.
type Service interface {
	Upsert(ctx context.Context, structure string, userID common.UserID) (*mtypes.MoleculeDTO, bool, error)
	Get(ctx context.Context, id common.ID) (*mtypes.MoleculeDTO, error)
	Search(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error)
	FindSimilar(ctx context.Context, structure string, threshold float64, fpType mtypes.FingerprintType, maxResults int) ([]mtypes.MoleculeDTO, error)
	SubstructureSearch(ctx context.Context, req mtypes.SubstructureSearchRequest) (*mtypes.SubstructureSearchResponse, error)
	RecordObservations(ctx context.Context, moleculeID common.ID, obs []mtypes.PropertyObservation) error
	Observations(ctx context.Context, moleculeID common.ID) ([]mtypes.PropertyObservation, error)
	TransitionState(ctx context.Context, id common.ID, from, to mtypes.MoleculeState) error
	SetFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind, note string) error
	ClearFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind string) error
}

type service struct {
	domain *domainmol.Service
	logger logging.Logger
}

// NewService constructs the application molecule service over the given
// domain service.
func NewService(domainSvc *domainmol.Service, logger logging.Logger) Service {
	return &service{domain: domainSvc, logger: logger}
}

func (s *service) Upsert(ctx context.Context, structure string, userID common.UserID) (*mtypes.MoleculeDTO, bool, error) {
	mol, created, err := s.domain.UpsertMolecule(ctx, structure, userID)
	if err != nil {
		return nil, false, err
	}
	return toDTO(mol), created, nil
}

func (s *service) Get(ctx context.Context, id common.ID) (*mtypes.MoleculeDTO, error) {
	mol, err := s.domain.GetMolecule(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDTO(mol), nil
}

func (s *service) Search(ctx context.Context, req mtypes.MoleculeSearchRequest) (*mtypes.MoleculeSearchResponse, error) {
	return s.domain.SearchMolecules(ctx, req)
}

func (s *service) FindSimilar(ctx context.Context, structure string, threshold float64, fpType mtypes.FingerprintType, maxResults int) ([]mtypes.MoleculeDTO, error) {
	if fpType == "" {
		fpType = mtypes.FPMorgan
	}
	matches, err := s.domain.FindSimilarMolecules(ctx, structure, threshold, fpType, maxResults)
	if err != nil {
		return nil, err
	}
	dtos := make([]mtypes.MoleculeDTO, len(matches))
	for i, m := range matches {
		dtos[i] = *toDTO(m)
	}
	return dtos, nil
}

func (s *service) SubstructureSearch(ctx context.Context, req mtypes.SubstructureSearchRequest) (*mtypes.SubstructureSearchResponse, error) {
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}
	matches, err := s.domain.SubstructureSearch(ctx, req.Structure, maxResults)
	if err != nil {
		return nil, err
	}
	dtos := make([]mtypes.MoleculeDTO, len(matches))
	for i, m := range matches {
		dtos[i] = *toDTO(m)
	}
	return &mtypes.SubstructureSearchResponse{Results: dtos, Total: len(dtos)}, nil
}

func (s *service) RecordObservations(ctx context.Context, moleculeID common.ID, obs []mtypes.PropertyObservation) error {
	domainObs := make([]*domainmol.PropertyObservation, 0, len(obs))
	for _, o := range obs {
		one, err := domainmol.NewPropertyObservation(moleculeID, o.Name, o.Source, o.Value, o.Units)
		if err != nil {
			return err
		}
		one.Confidence = o.Confidence
		domainObs = append(domainObs, one)
	}
	return s.domain.RecordObservations(ctx, moleculeID, domainObs)
}

func (s *service) Observations(ctx context.Context, moleculeID common.ID) ([]mtypes.PropertyObservation, error) {
	obs, err := s.domain.ObservationsFor(ctx, moleculeID)
	if err != nil {
		return nil, err
	}
	dtos := make([]mtypes.PropertyObservation, len(obs))
	for i, o := range obs {
		dtos[i] = mtypes.PropertyObservation{
			MoleculeID: o.MoleculeID,
			Name:       o.Name,
			Source:     o.Source,
			Value:      o.Value,
			Units:      o.Units,
			RecordedAt: common.Time(o.RecordedAt),
			Confidence: o.Confidence,
		}
	}
	return dtos, nil
}

func (s *service) TransitionState(ctx context.Context, id common.ID, from, to mtypes.MoleculeState) error {
	return s.domain.TransitionState(ctx, id, from, to)
}

func (s *service) SetFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind, note string) error {
	return s.domain.SetFlag(ctx, moleculeID, userID, kind, note)
}

func (s *service) ClearFlag(ctx context.Context, moleculeID common.ID, userID common.UserID, kind string) error {
	return s.domain.ClearFlag(ctx, moleculeID, userID, kind)
}

func toDTO(mol *domainmol.Molecule) *mtypes.MoleculeDTO {
	if mol == nil {
		return nil
	}
	fps := make(map[mtypes.FingerprintType][]byte, len(mol.Fingerprints))
	for t, fp := range mol.Fingerprints {
		if fp != nil {
			fps[t] = fp.Bits
		}
	}
	return &mtypes.MoleculeDTO{
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
