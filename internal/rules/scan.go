package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"pagesplit/pkg/contract"
)

// DefaultIterationLimit: 单次扫描允许的最大匹配次数，超出即 ErrRunawayMatch。
const DefaultIterationLimit = 5_000_000

// groupPrefix: 合并正则中标识规则的命名组前缀。
const groupPrefix = "splitrule"

// Scanner: 多规则扫描器。
// 不含反向引用的规则并入一个交替正则一次线性扫描；其余规则逐条扫描。
type Scanner struct {
	combined *regexp2.Regexp
	members  []*Compiled
	singles  []*Compiled
	// Limit: 迭代上限；<=0 取 DefaultIterationLimit。
	Limit  int
	Logger *contract.Logger
}

// NewScanner 构建扫描器。
func NewScanner(compiled []*Compiled) (*Scanner, error) {
	s := &Scanner{}
	var parts []string
	for _, c := range compiled {
		if c.Backref {
			s.singles = append(s.singles, c)
			continue
		}
		parts = append(parts, "(?<"+groupPrefix+strconv.Itoa(len(s.members))+">"+c.Scan+")")
		s.members = append(s.members, c)
	}
	if len(parts) > 0 {
		src := strings.Join(parts, "|")
		re, err := regexp2.Compile(src, Options)
		if err != nil {
			return nil, &contract.PatternError{Kind: "combined", Pattern: src, Err: err}
		}
		s.combined = re
	}
	return s, nil
}

// Scan 在 text 上执行全部规则，按规则逐个回调命中。
// 同一规则的命中按偏移递增；不同规则之间不保证顺序（调用方按偏移排序去重）。
func (s *Scanner) Scan(text []rune, yield func(c *Compiled, h Hit) error) error {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultIterationLimit
	}
	if s.combined != nil {
		if err := s.scanCombined(text, limit, yield); err != nil {
			return err
		}
	}
	for _, c := range s.singles {
		if err := scanSingle(c, text, limit, yield); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) scanCombined(text []rune, limit int, yield func(*Compiled, Hit) error) error {
	pos, iter := 0, 0
	for pos <= len(text) {
		m, err := s.combined.FindRunesMatchStartingAt(text, pos)
		if err != nil {
			return fmt.Errorf("combined scan at offset %d: %w", pos, err)
		}
		if m == nil {
			break
		}
		if iter++; iter > limit {
			return fmt.Errorf("combined scan exceeded %d iterations at offset %d: %w", limit, m.Index, contract.ErrRunawayMatch)
		}
		at := m.Index
		winner := -1
		for i := range s.members {
			if g := m.GroupByName(groupPrefix + strconv.Itoa(i)); g != nil && len(g.Captures) > 0 {
				winner = i
				break
			}
		}
		// 胜出规则与同位置命中的其余规则均用锚定变体复核，取回各自的捕获
		for i, c := range s.members {
			if i < winner {
				continue
			}
			am, err := c.Anchored.FindRunesMatchStartingAt(text, at)
			if err != nil {
				return fmt.Errorf("rule %d at offset %d: %w", c.Index, at, err)
			}
			if am == nil || am.Index != at {
				continue
			}
			if err := yield(c, c.hit(am)); err != nil {
				return err
			}
		}
		if m.Length == 0 {
			pos = at + 1
		} else {
			pos = at + m.Length
		}
	}
	if s.Logger.TraceEnabled() {
		s.Logger.Tracef("combined scan done", "rules", len(s.members), "iterations", iter)
	}
	return nil
}

func scanSingle(c *Compiled, text []rune, limit int, yield func(*Compiled, Hit) error) error {
	m, err := c.Re.FindRunesMatchStartingAt(text, 0)
	for iter := 0; m != nil; iter++ {
		if err != nil {
			return err
		}
		if iter >= limit {
			return fmt.Errorf("rule %d exceeded %d iterations at offset %d: %w", c.Index, limit, m.Index, contract.ErrRunawayMatch)
		}
		if err := yield(c, c.hit(m)); err != nil {
			return err
		}
		m, err = c.Re.FindNextMatch(m)
	}
	if err != nil {
		return fmt.Errorf("rule %d: %w", c.Index, err)
	}
	return nil
}
