package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Duration 覆盖层配置中的时长
//
// 支持的格式:
//   - 字符串: "30s", "10000s", "1h30m", "100ms" 等
//   - 数字: 秒数，可以带小数，例如 0.5 表示 500ms
//   - null: 保持原值，便于在默认配置上做局部覆盖
//
// 时长不能为负数。输出时统一写成字符串。
type Duration time.Duration

// maxSeconds 数字形式能表示的最大秒数
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// UnmarshalJSON 实现 json.Unmarshaler 接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		duration, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration string %q: %w", s, err)
		}
		if duration < 0 {
			return fmt.Errorf("duration %q must not be negative", s)
		}
		*d = Duration(duration)
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		if secs < 0 || secs > maxSeconds {
			return fmt.Errorf("duration %v seconds out of range", secs)
		}
		*d = Duration(math.Round(secs * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("duration must be a string (e.g., \"30s\") or number of seconds")
}

// MarshalJSON 输出为人类可读的字符串格式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Duration 返回底层的 time.Duration 值
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String 返回字符串表示
func (d Duration) String() string {
	return time.Duration(d).String()
}
