package feed

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/model"
	"github.com/podium-performance/funnel-cli/internal/reconcile"
)

// CustomScan ingests one manifest-declared source: identity resolution
// plus profile fills, with an optional stage the rows attest.
type CustomScan struct {
	name   string
	stage  model.Stage
	fields reconcile.FieldMap
	copy   map[string]string
}

// NewCustomScan builds a scan feed from its manifest entry.
func NewCustomScan(cfg ScanConfig) (*CustomScan, error) {
	s := &CustomScan{
		name:   cfg.Name,
		fields: reconcile.DefaultFieldMap(),
		copy:   make(map[string]string),
	}

	if cfg.Stage != "" {
		stage, ok := model.ParseStage(cfg.Stage)
		if !ok {
			return nil, eris.Errorf("feed: manifest scan %q has unknown stage %q", cfg.Name, cfg.Stage)
		}
		s.stage = stage
	}

	for field, aliases := range cfg.Fields {
		switch field {
		case "email":
			s.fields.Email = aliases
		case "first":
			s.fields.First = aliases
		case "last":
			s.fields.Last = aliases
		case "full":
			s.fields.Full = aliases
		case "timestamp":
			s.fields.Timestamp = aliases
		default:
			return nil, eris.Errorf("feed: manifest scan %q has unknown identity field %q", cfg.Name, field)
		}
	}

	for field, aliases := range cfg.Copy {
		s.fields = s.fields.WithExtra(field, aliases...)
		s.copy[field] = field
	}

	return s, nil
}

func (s *CustomScan) Name() string { return s.name }
func (s *CustomScan) Phase() Phase { return PhaseEnrichment }

func (s *CustomScan) Ingest(ctx context.Context, env *Env) error {
	rows, err := env.Rows(ctx, s.name)
	if err != nil {
		return err
	}
	log := zap.L().With(zap.String("feed", s.name))

	for _, row := range rows {
		env.Seen()

		if row.Empty() {
			env.Skip(model.SkipEmptyRow)
			continue
		}

		id, err := reconcile.Resolve(row, s.fields)
		if err != nil {
			env.Skip(model.SkipNoIdentity)
			log.Debug("row skipped", zap.Error(err))
			continue
		}

		r := env.Riders.GetOrCreate(id.Key, id.First, id.Last)

		if s.stage != "" {
			if ts, ok := s.fields.Time(row); ok {
				r.MarkMilestone(s.stage, ts, false)
			}
			r.AdvanceTo(s.stage)
		}

		for logical, field := range s.copy {
			v := s.fields.Field(row, logical)
			if v == "" {
				continue
			}
			if err := reconcile.ApplyField(r, field, v, false); err != nil {
				log.Debug("field not applied", zap.String("field", field), zap.Error(err))
			}
		}

		env.Loaded()
	}

	return nil
}
