package console

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// notAvailable は日付が無い場合の表示。
const notAvailable = "N/A"

// 日付の表示形式（pt-BR）。
const (
	dateLayout     = "02/01/2006"
	dateTimeLayout = "02/01/2006 15:04:05"
)

// 受け付ける日付の形式。
var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// listEnvelope は一覧APIのレスポンス。
type listEnvelope struct {
	Mensagem []map[string]any `json:"mensagem"`
}

// row は一覧表の1行。
type row struct {
	ID    string
	Cells []string
}

// fetchList は一覧APIを呼び出してレコードを返す。
func (s *Server) fetchList(ctx context.Context, path string) ([]map[string]any, error) {
	var env listEnvelope
	if err := s.api.GetJSON(ctx, path, &env); err != nil {
		return nil, err
	}
	return env.Mensagem, nil
}

// fetchOptions は一覧APIのレコードをid・nomeの選択肢に変換する。
func (s *Server) fetchOptions(ctx context.Context, path string) ([]option, error) {
	records, err := s.fetchList(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("選択肢の取得に失敗: %w", err)
	}
	opts := make([]option, 0, len(records))
	for _, rec := range records {
		id := formatValue(rec["id"])
		if id == "" {
			continue
		}
		opts = append(opts, option{Value: id, Label: formatValue(rec["nome"])})
	}
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Label < opts[j].Label })
	return opts, nil
}

// fetchItem は1件取得APIを呼び出し、r.Entityで包まれたレコードを返す。
func (s *Server) fetchItem(ctx context.Context, r *resource, id string) (map[string]any, error) {
	resp, err := s.api.Get(ctx, r.ItemPath(id))
	if err != nil {
		return nil, err
	}
	var env map[string]json.RawMessage
	if err := resp.DecodeJSON(&env); err != nil {
		return nil, err
	}
	raw, ok := env[r.Entity]
	if !ok {
		return nil, fmt.Errorf("レスポンスに%sがありません", r.Entity)
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%sのデシリアライズに失敗: %w", r.Entity, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("レスポンスの%sが空です", r.Entity)
	}
	return rec, nil
}

// prefill はレコードの値をフォームの初期値にする。パスワードは空のままにする。
func prefill(fields []field, rec map[string]any) {
	for i := range fields {
		switch fields[i].Type {
		case "password":
		case "date":
			fields[i].Value = dateForInput(rec[fields[i].Name])
		default:
			fields[i].Value = formatValue(rec[fields[i].Name])
		}
	}
}

// dateForInput はAPIの日付を日付入力欄の形式にする。解析できなければ空を返す。
func dateForInput(v any) string {
	s, _ := v.(string)
	if s == "" {
		return ""
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(time.DateOnly)
	}
	return ""
}

// buildRows はレコードを表示用の行に変換する。
func buildRows(r *resource, records []map[string]any) []row {
	rows := make([]row, 0, len(records))
	for _, rec := range records {
		id := formatValue(rec["id"])
		if id == "" && r.IDFallback != "" {
			id = formatValue(rec[r.IDFallback])
		}
		cells := make([]string, len(r.Columns))
		for i, col := range r.Columns {
			if col.Date {
				cells[i] = formatDate(rec[col.Key], col.WithTime)
				continue
			}
			cells[i] = formatValue(rec[col.Key])
		}
		rows = append(rows, row{ID: id, Cells: cells})
	}
	return rows
}

// formatDate はAPIの日付をpt-BR形式に変換する。値が無ければN/Aを返す。
// 解析できない値はそのまま表示する。
func formatDate(v any, withTime bool) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return notAvailable
	}
	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if withTime {
			return t.Format(dateTimeLayout)
		}
		return t.Format(dateLayout)
	}
	return s
}

// formatValue はJSONの値を表示用の文字列にする。
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "SIM"
		}
		return "NÃO"
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
