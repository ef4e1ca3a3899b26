package matching

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errNoBullets = errors.New("no dash bullet lines in response")

// parseScore 解析只包含数字的评分回复。越界值原样返回，不做截断。
func parseScore(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", raw, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("parse score %q: not a finite number", raw)
	}
	return value, nil
}

// parseBullets 保留以短横线开头的行，去掉标记后返回。
func parseBullets(raw string) []string {
	var bullets []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if item == "" {
			continue
		}
		bullets = append(bullets, item)
	}
	return bullets
}

type skillsPayload struct {
	TechnicalSkills json.RawMessage `json:"technicalSkills"`
	SoftSkills      json.RawMessage `json:"softSkills"`
	Experience      json.RawMessage `json:"experience"`
	Education       json.RawMessage `json:"education"`
	Certifications  json.RawMessage `json:"certifications"`
}

// parseSkills 解析技能提取意图返回的 JSON，允许外层包裹 ``` 代码块或多余文字。
func parseSkills(raw string) (Skills, error) {
	body := extractJSON(raw)
	if body == "" {
		return Skills{}, errors.New("no json object in skills response")
	}

	var payload skillsPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Skills{}, fmt.Errorf("decode skills json: %w", err)
	}

	skills := Skills{
		TechnicalSkills: coerceStrings(payload.TechnicalSkills),
		SoftSkills:      coerceStrings(payload.SoftSkills),
		Experience:      coerceText(payload.Experience),
		Education:       coerceText(payload.Education),
		Certifications:  coerceStrings(payload.Certifications),
	}
	if len(skills.TechnicalSkills) == 0 && len(skills.SoftSkills) == 0 &&
		skills.Experience == "" && skills.Education == "" && len(skills.Certifications) == 0 {
		return Skills{}, errors.New("skills response has no known keys")
	}
	return skills, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// coerceStrings 接受字符串数组，或以逗号分隔的单个字符串。
func coerceStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		out := []string{}
		for _, part := range strings.Split(single, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return []string{}
}

// coerceText 接受字符串，或将数组拼接为一句。
func coerceText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	return strings.Join(coerceStrings(raw), "; ")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		// 模型有时会返回 {"name": "..."} 形式的对象。
		for _, key := range []string{"name", "title", "skill"} {
			if s, ok := t[key].(string); ok {
				return s
			}
		}
		data, _ := json.Marshal(t)
		return string(data)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
