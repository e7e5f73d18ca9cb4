package devbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"valter-dash/internal/model"
)

// maxSuggestionDistance bounds how far an existing key may be from an
// unknown relation value to be offered as a merge target.
const maxSuggestionDistance = 3

func jsonNumber(s string) json.Number { return json.Number(s) }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Scanner walks island trees, computes aggregations, and raises pending
// actions for relation values that match no cloud row.
type Scanner struct {
	fixture Fixture
	db      *DB
	log     *zap.Logger
}

func NewScanner(f Fixture, db *DB, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{fixture: f, db: db, log: log}
}

// ScanAll rebuilds every island row and regenerates open actions.
func (s *Scanner) ScanAll(ctx context.Context, cfg model.AppConfig) error {
	if err := s.db.PurgeIslands(ctx); err != nil {
		return err
	}
	if err := s.db.ResetPending(ctx); err != nil {
		return err
	}
	for _, def := range cfg.Islands {
		base := s.fixture.IslandBase(def.RootPath)
		entries, err := os.ReadDir(base)
		if err != nil {
			s.log.Warn("island root not found", zap.String("island", def.Name), zap.String("path", base), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			meta := filepath.Join(base, e.Name(), def.MetaFileName)
			if _, err := os.Stat(meta); err != nil {
				continue
			}
			if err := s.ScanIsland(ctx, cfg, def, meta); err != nil {
				s.log.Error("scan island failed", zap.String("meta", meta), zap.Error(err))
			}
		}
	}
	return nil
}

// ScanIsland processes one island metadata file.
func (s *Scanner) ScanIsland(ctx context.Context, cfg model.AppConfig, def model.IslandSchema, metaPath string) error {
	b, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}
	var meta map[string]any
	if err := yaml.Unmarshal(b, &meta); err != nil {
		return fmt.Errorf("parse %s: %w", metaPath, err)
	}
	name, _ := meta["name"].(string)
	if name == "" {
		name = "Unknown Project"
	}
	dir := filepath.Dir(metaPath)

	row := model.Row{}
	for k, v := range meta {
		v = normalizeValue(v)
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		row[k] = v
	}
	if _, ok := row["status"]; !ok {
		row["status"] = nil
	}
	if info, err := os.Stat(metaPath); err == nil {
		row["updated_at"] = info.ModTime().Format(time.RFC3339)
	}

	for _, rel := range def.Relations {
		val, ok := meta[rel.Field].(string)
		if !ok || val == "" {
			continue
		}
		if err := s.checkRelation(ctx, cfg, def, name, rel, val); err != nil {
			s.log.Error("relation check failed", zap.String("cloud", rel.TargetCloud), zap.Error(err))
		}
	}

	for k, v := range Aggregate(dir, def.Aggregations) {
		row[k] = jsonNumber(formatFloat(v))
	}
	return s.db.UpsertIsland(ctx, def.Name, name, dir, row)
}

func (s *Scanner) checkRelation(ctx context.Context, cfg model.AppConfig, def model.IslandSchema, islandName string, rel model.Relation, value string) error {
	keyField := relationKeyField(cfg, rel.TargetCloud)
	if _, found, err := s.db.FindCloudID(ctx, rel.TargetCloud, keyField, value); err != nil || found {
		return err
	}
	if pending, err := s.db.HasPending(ctx, rel.TargetCloud, value); err != nil || pending {
		return err
	}
	existing, err := s.db.CloudKeyValues(ctx, rel.TargetCloud, keyField)
	if err != nil {
		return err
	}
	b, err := json.Marshal(map[string]string{
		"source_island_type": def.Name,
		"source_island_name": islandName,
		"field":              rel.Field,
	})
	if err != nil {
		return err
	}
	id, err := s.db.CreatePending(ctx, rel.TargetCloud, keyField, value, string(b), Suggest(value, existing))
	if err != nil {
		return err
	}
	s.log.Info("pending action created", zap.String("id", id), zap.String("cloud", rel.TargetCloud), zap.String("value", value))
	return nil
}

// relationKeyField is the target cloud's first declared field, else "id".
func relationKeyField(cfg model.AppConfig, cloud string) string {
	for _, c := range cfg.Clouds {
		if c.Name == cloud && len(c.Fields) > 0 {
			return c.Fields[0].Key
		}
	}
	return "id"
}

// Suggest returns the existing keys within a small edit distance of value,
// closest first. Exact matches are excluded.
func Suggest(value string, existing []string) []string {
	type cand struct {
		key  string
		dist int
	}
	var cands []cand
	seen := map[string]bool{}
	for _, k := range existing {
		if seen[k] {
			continue
		}
		seen[k] = true
		d := levenshtein.Distance(value, k, nil)
		if d > 0 && d <= maxSuggestionDistance {
			cands = append(cands, cand{key: k, dist: d})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.key)
	}
	return out
}

// Aggregate computes each rule over the files matching its glob under dir.
// Files without a numeric target field are skipped.
func Aggregate(dir string, rules []model.Aggregation) map[string]float64 {
	out := make(map[string]float64, len(rules))
	for _, rule := range rules {
		var total, count float64
		matches, _ := filepath.Glob(filepath.Join(dir, rule.SourcePath))
		for _, p := range matches {
			if v, ok := extractNumber(p, rule.TargetField); ok {
				total += v
				count++
			}
		}
		switch rule.Kind {
		case model.AggregationCount:
			out[rule.Name] = count
		case model.AggregationAverage:
			if count > 0 {
				out[rule.Name] = total / count
			} else {
				out[rule.Name] = 0
			}
		default:
			out[rule.Name] = total
		}
	}
	return out
}

func extractNumber(path, field string) (float64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return 0, false
	}
	switch v := doc[field].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
