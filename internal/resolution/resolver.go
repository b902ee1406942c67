package resolution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/apperror"
	"github.com/lapig-ufg/pasto-legal/internal/models"
)

// GeometryClient looks up registered properties. An empty slice means no
// property was found and is not an error.
type GeometryClient interface {
	FindByCoordinate(ctx context.Context, c models.Coordinate) ([]models.PropertyFeature, error)
	FindByCode(ctx context.Context, code string) ([]models.PropertyFeature, error)
}

// PreviewRenderer draws candidate boundaries into a single PNG.
type PreviewRenderer interface {
	Render(features []models.PropertyFeature) ([]byte, error)
}

type Status string

const (
	StatusNotFound         Status = "NOT_FOUND"
	StatusSingleFound      Status = "SINGLE_FOUND"
	StatusMultipleFound    Status = "MULTIPLE_FOUND"
	StatusConfirmed        Status = "CONFIRMED"
	StatusRejected         Status = "REJECTED"
	StatusSelectionCleared Status = "SELECTION_CLEARED"
)

// Candidate is the presentation of one staged feature. Index is 1-based.
type Candidate struct {
	Index        int     `json:"index"`
	Code         string  `json:"code"`
	AreaHectares float64 `json:"area_ha"`
	Municipality string  `json:"municipality"`
}

// Outcome is what the agent layer receives after each operation. Summary and
// Instructions feed the prompt; the agent composes the final reply.
type Outcome struct {
	Status       Status                  `json:"status"`
	Summary      string                  `json:"summary"`
	Instructions []string                `json:"instructions"`
	Candidates   []Candidate             `json:"candidates,omitempty"`
	Selected     *models.PropertyFeature `json:"selected,omitempty"`
	Preview      []byte                  `json:"-"`
}

// LookupInput carries either a coordinate or a CAR code, never both.
type LookupInput struct {
	Coordinate *models.Coordinate
	Code       string
}

func (in LookupInput) normalize() (LookupInput, error) {
	hasCode := strings.TrimSpace(in.Code) != ""
	switch {
	case in.Coordinate != nil && hasCode:
		return in, fmt.Errorf("provide either a coordinate or a CAR code, not both")
	case in.Coordinate != nil:
		if err := in.Coordinate.Validate(); err != nil {
			return in, err
		}
		return in, nil
	case hasCode:
		code, err := models.NormalizeCARCode(in.Code)
		if err != nil {
			return in, err
		}
		return LookupInput{Code: code}, nil
	default:
		return in, fmt.Errorf("a coordinate or a CAR code is required")
	}
}

func (in LookupInput) String() string {
	if in.Coordinate != nil {
		return in.Coordinate.String()
	}
	return in.Code
}

const DefaultLookupTimeout = 10 * time.Second

// Resolver applies the resolution protocol to a caller owned State. It holds
// no per-conversation data; callers serialize operations on the same State.
type Resolver struct {
	client  GeometryClient
	preview PreviewRenderer
	timeout time.Duration
	logr    *zap.Logger
}

// NewResolver builds a resolver. preview may be nil to disable images.
func NewResolver(client GeometryClient, preview PreviewRenderer, timeout time.Duration, logr *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Resolver{client: client, preview: preview, timeout: timeout, logr: logr}
}

// Lookup queries the registry and stages the result. A new lookup always
// replaces any unresolved candidates. On error the state is left untouched.
func (r *Resolver) Lookup(ctx context.Context, s *State, in LookupInput) (*Outcome, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, apperror.New(apperror.InvalidInput, err.Error(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var features []models.PropertyFeature
	if in.Coordinate != nil {
		features, err = r.client.FindByCoordinate(ctx, *in.Coordinate)
	} else {
		features, err = r.client.FindByCode(ctx, in.Code)
	}
	if err != nil {
		err = apperror.Classify("registry", err)
		r.logr.Warn("property lookup failed",
			zap.String("input", in.String()),
			zap.String("kind", string(apperror.KindOf(err))),
			zap.Error(err))
		return nil, err
	}

	switch len(features) {
	case 0:
		s.clearTransient()
		r.logr.Info("no property found", zap.String("input", in.String()))
		return &Outcome{
			Status:       StatusNotFound,
			Summary:      "Nenhuma propriedade foi encontrada para " + in.String() + ".",
			Instructions: apperror.DefaultInstructions(apperror.NotFound),
		}, nil
	case 1:
		s.stageSingle(features[0])
		return &Outcome{
			Status:  StatusSingleFound,
			Summary: features[0].Summary(),
			Instructions: []string{
				"Informe ao usuário as informações da propriedade na íntegra.",
				`Pergunte: "É esta a propriedade correta?"`,
				"Se o usuário confirmar, confirme a seleção; se negar, rejeite-a.",
			},
			Candidates: NewCandidates(features),
			Preview:    r.render(features),
		}, nil
	default:
		s.stageList(features)
		return &Outcome{
			Status:  StatusMultipleFound,
			Summary: enumerate(features),
			Instructions: []string{
				"Informe ao usuário as informações das propriedades na íntegra.",
				fmt.Sprintf("Peça ao usuário que escolha uma propriedade entre 1 e %d.", len(features)),
				"Quando o usuário responder com um número, selecione a propriedade correspondente.",
			},
			Candidates: NewCandidates(features),
			Preview:    r.render(features),
		}, nil
	}
}

// ConfirmSingle accepts the staged single candidate.
func (r *Resolver) ConfirmSingle(s *State) (*Outcome, error) {
	f, ok := s.Candidate()
	if s.Mode() != ModeAwaitingSingle || !ok {
		return nil, apperror.New(apperror.NoPendingResolution, "no property is awaiting confirmation", nil)
	}
	s.commit(f)
	return confirmed(f), nil
}

// SelectFromList accepts the 1-based index of a staged candidate. An out of
// range index leaves the state unchanged so the user can retry.
func (r *Resolver) SelectFromList(s *State, index int) (*Outcome, error) {
	if s.Mode() != ModeAwaitingList {
		return nil, apperror.New(apperror.NoPendingResolution, "no property list is awaiting a selection", nil)
	}
	n := len(s.candidateList)
	if index < 1 || index > n {
		return nil, apperror.New(apperror.InvalidSelection,
			fmt.Sprintf("selection %d is out of range, choose between 1 and %d", index, n), nil).
			WithInstructions(fmt.Sprintf("Seleção inválida. Peça ao usuário que escolha um número válido entre 1 e %d.", n))
	}
	f := s.candidateList[index-1]
	s.commit(f)
	return confirmed(f), nil
}

// Reject discards the staged candidates. The previously selected property,
// if any, is kept.
func (r *Resolver) Reject(s *State) (*Outcome, error) {
	if s.Mode() == ModeIdle {
		return nil, apperror.New(apperror.NoPendingResolution, "nothing to reject", nil)
	}
	s.clearTransient()
	return &Outcome{
		Status:  StatusRejected,
		Summary: "Seleção limpa.",
		Instructions: []string{
			"Peça desculpas por não ter encontrado a propriedade correta.",
			"Solicite uma nova localização pelo pino do WhatsApp ou o código do CAR.",
		},
	}, nil
}

// ClearSelected forgets the active property.
func (r *Resolver) ClearSelected(s *State) (*Outcome, error) {
	if s.selected == nil {
		return nil, apperror.New(apperror.NoActiveProperty, "no property is selected", nil)
	}
	s.selected = nil
	return &Outcome{
		Status:  StatusSelectionCleared,
		Summary: "A propriedade ativa foi removida.",
		Instructions: []string{
			"Informe ao usuário que a propriedade foi removida.",
			"Para novas análises, solicite a localização ou o código do CAR.",
		},
	}, nil
}

// RequireSelected returns the active property or NoActiveProperty.
func RequireSelected(s *State) (models.PropertyFeature, error) {
	f, ok := s.Selected()
	if !ok {
		return models.PropertyFeature{}, apperror.New(apperror.NoActiveProperty, "no property is selected", nil)
	}
	return f, nil
}

func (r *Resolver) render(features []models.PropertyFeature) []byte {
	if r.preview == nil {
		return nil
	}
	img, err := r.preview.Render(features)
	if err != nil {
		r.logr.Warn("preview rendering failed", zap.Int("features", len(features)), zap.Error(err))
		return nil
	}
	return img
}

func confirmed(f models.PropertyFeature) *Outcome {
	return &Outcome{
		Status:  StatusConfirmed,
		Summary: "Perfeito! A propriedade foi confirmada. " + f.Summary(),
		Instructions: []string{
			"Pergunte como o usuário deseja seguir: análise de pastagem, uso e cobertura da terra ou biomassa.",
		},
		Selected: &f,
	}
}

func NewCandidates(features []models.PropertyFeature) []Candidate {
	out := make([]Candidate, len(features))
	for i, f := range features {
		out[i] = Candidate{
			Index:        i + 1,
			Code:         f.Code,
			AreaHectares: math.Round(f.AreaHectares),
			Municipality: f.Municipality,
		}
	}
	return out
}

func enumerate(features []models.PropertyFeature) string {
	var b strings.Builder
	for i, f := range features {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Área %d, %s", i+1, f.Summary())
	}
	return b.String()
}
