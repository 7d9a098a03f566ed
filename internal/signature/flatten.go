package signature

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// KeySort задаёт порядок сортировки ключей объектов при каноникализации.
type KeySort int

const (
	// KeySortByte — побайтовая, регистрозависимая сортировка ключей.
	KeySortByte KeySort = iota
	// KeySortFold — сортировка без учёта регистра. Встречается в старых
	// версиях API банка, оставлена как настраиваемый режим.
	KeySortFold
)

// Flatten рекурсивно сплющивает значение в детерминированную
// последовательность строк-токенов. Правила:
//   - nil даёт один пустой токен;
//   - объект обходится в порядке отсортированных ключей, значения
//     сплющиваются рекурсивно;
//   - массив обходится в исходном порядке элементов;
//   - примитив превращается в каноническую строку.
//
// Никакие поля внутри не исключаются: отбрасывание Token/Receipt —
// ответственность вызывающей стороны до каноникализации.
func Flatten(v any, mode KeySort) []string {
	if v == nil {
		return []string{""}
	}

	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortKeys(keys, mode)

		var result []string
		for _, k := range keys {
			result = append(result, Flatten(val[k], mode)...)
		}
		if result == nil {
			result = []string{}
		}
		return result
	case []any:
		var result []string
		for _, item := range val {
			result = append(result, Flatten(item, mode)...)
		}
		if result == nil {
			result = []string{}
		}
		return result
	}

	return []string{leafString(v)}
}

func sortKeys(keys []string, mode KeySort) {
	switch mode {
	case KeySortFold:
		sort.Slice(keys, func(i, j int) bool {
			a, b := strings.ToLower(keys[i]), strings.ToLower(keys[j])
			if a == b {
				return keys[i] < keys[j]
			}
			return a < b
		})
	default:
		sort.Strings(keys)
	}
}

// leafString возвращает каноническое строковое представление примитива:
// целые без разделителей, числа без экспоненты, bool строчными буквами.
func leafString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		// json.Unmarshal отдаёт числа как float64: целые значения
		// должны печататься без дробной части и без экспоненты.
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	}

	return fmt.Sprint(v)
}
