package resolver

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Mohit-Baraiya11/DPR/internal/model"
)

var (
	completedRe = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])completed(?:$|[^\p{L}\p{N}_])`)

	// "by 40" / "by 40, 30 and 50" / "by 12.5"
	byQuantityRe = regexp.MustCompile(`(?i)\bby\s+(\d+(?:\.\d+)?(?:\s*(?:,|and|&)\s*\d+(?:\.\d+)?)*)`)
	numberRe     = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// NormalizeStatus 只有独立的单词 "completed"（不区分大小写）映射为 COM，其余一律 WIP
func NormalizeStatus(text string) model.Status {
	if completedRe.MatchString(text) {
		return model.StatusCOM
	}
	return model.StatusWIP
}

// CoerceQuantity 校验 oracle 给出的数量：非数字、负数、NaN/Inf 一律视为 0
func CoerceQuantity(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || v <= 0 || v > maxQuantity {
		return 0
	}
	return v
}

const maxQuantity = 1e15

// ExtractQuantities 从原始文本中提取 "by" 之后的数量
func ExtractQuantities(text string) []float64 {
	out := make([]float64, 0)
	for _, m := range byQuantityRe.FindAllStringSubmatch(text, -1) {
		for _, num := range numberRe.FindAllString(m[1], -1) {
			out = append(out, CoerceQuantity(num))
		}
	}
	return out
}

func statusSource(in model.Instruction) string {
	if strings.TrimSpace(in.StatusWord) != "" {
		return in.StatusWord
	}
	return in.Text
}

// instructionQuantities oracle 未给出数量时回退到文本提取，仍没有则为 0
func instructionQuantities(in model.Instruction) []float64 {
	if len(in.Quantities) > 0 {
		out := make([]float64, len(in.Quantities))
		for i, raw := range in.Quantities {
			out[i] = CoerceQuantity(raw)
		}
		return out
	}
	if extracted := ExtractQuantities(in.Text); len(extracted) > 0 {
		return extracted
	}
	return []float64{0}
}
