package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/yuqie6/drivestats/internal/repository"
	"github.com/yuqie6/drivestats/internal/schema"
)

const (
	maxPairingStats     = 4
	maxMatchingExamples = 10
	exampleMatchLimit   = 20 // 命中数不超过该值时才返回示例
)

// StatsService 统计与配对概率
type StatsService struct {
	catalog *repository.CatalogRepository
	stats   *repository.StatsRepository
	now     func() time.Time
}

// NewStatsService 创建统计服务
func NewStatsService(catalog *repository.CatalogRepository, stats *repository.StatsRepository) *StatsService {
	return &StatsService{catalog: catalog, stats: stats, now: time.Now}
}

// SubstatFrequency 副词条出现次数及占驱动盘总数的百分比
type SubstatFrequency struct {
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// StatsReport 全量统计
type StatsReport struct {
	TotalPieces              int64                       `json:"total_pieces"`
	TotalSets                int                         `json:"total_sets"`
	AvgSubstats              float64                     `json:"avg_substats"`
	PositionDistribution     map[string]int64            `json:"position_distribution"` // "N号位"
	SetDistribution          map[string]int64            `json:"set_distribution"`
	MainStatDistribution     map[string]int64            `json:"main_stat_distribution"`
	MainStats                map[string]map[string]int64 `json:"main_stats"` // "N号位" -> 主词条 -> 数量
	SubstatFrequency         map[string]SubstatFrequency `json:"substat_frequency"`
	SubstatCountDistribution map[int]int64               `json:"substat_count_distribution"` // 副词条数量 -> 驱动盘数
	UpgradeDistribution      map[string]int64            `json:"upgrade_distribution"`       // "+N"
	LastUpdated              time.Time                   `json:"last_updated"`
}

// MatchingExample 配对命中的驱动盘
type MatchingExample struct {
	DriveID  int64  `json:"drive_id"`
	SetName  string `json:"set_name"`
	Position int    `json:"position"`
	MainStat string `json:"main_stat"`
}

// PairingReport 配对概率（百分比）
type PairingReport struct {
	Theoretical             float64            `json:"theoretical"`
	Actual                  float64            `json:"actual"`
	Difference              float64            `json:"difference"`
	MatchCount              int64              `json:"matchCount"`
	TotalPieces             int64              `json:"totalPieces"`
	Expectation             int64              `json:"expectation"`
	IndividualProbabilities map[string]float64 `json:"individual_probabilities"`
	SelectedStats           []string           `json:"selected_stats"`
	MatchingExamples        []MatchingExample  `json:"matching_examples,omitempty"`
}

func positionKey(p int) string { return fmt.Sprintf("%d号位", p) }

// Aggregate 统计全部驱动盘；没有数据时返回全零报告
func (s *StatsService) Aggregate(ctx context.Context) (*StatsReport, error) {
	report := &StatsReport{
		PositionDistribution:     map[string]int64{},
		SetDistribution:          map[string]int64{},
		MainStatDistribution:     map[string]int64{},
		MainStats:                make(map[string]map[string]int64, schema.MaxPosition),
		SubstatFrequency:         map[string]SubstatFrequency{},
		SubstatCountDistribution: map[int]int64{},
		UpgradeDistribution:      map[string]int64{},
		LastUpdated:              s.now(),
	}
	for p := schema.MinPosition; p <= schema.MaxPosition; p++ {
		report.MainStats[positionKey(p)] = map[string]int64{}
	}

	total, err := s.stats.CountPieces(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	report.TotalPieces = total
	if total == 0 {
		return report, nil
	}

	byPos, err := s.stats.ByPosition(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	for _, r := range byPos {
		report.PositionDistribution[positionKey(r.Bucket)] = r.Count
	}

	bySet, err := s.stats.BySet(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	for _, r := range bySet {
		report.SetDistribution[r.Name] = r.Count
	}
	report.TotalSets = len(report.SetDistribution)

	byMain, err := s.stats.ByMainStat(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	for _, r := range byMain {
		report.MainStatDistribution[r.Name] = r.Count
	}

	perPos, err := s.stats.ByPositionMainStat(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	for _, r := range perPos {
		bucket, ok := report.MainStats[positionKey(r.Position)]
		if !ok {
			continue
		}
		bucket[r.Name] = r.Count
	}

	freq, err := s.stats.SubstatFrequency(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	for _, r := range freq {
		report.SubstatFrequency[r.Name] = SubstatFrequency{
			Count:      r.Count,
			Percentage: roundTo(float64(r.Count)/float64(total)*100, 2),
		}
	}

	totalSubstats, err := s.stats.CountSubstats(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	report.AvgSubstats = roundTo(float64(totalSubstats)/float64(total), 1)

	levels, err := s.stats.ByUpgradeLevel(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	for _, r := range levels {
		report.UpgradeDistribution[fmt.Sprintf("+%d", r.Bucket)] = r.Count
	}

	counts, err := s.stats.BySubstatCount(ctx)
	if err != nil {
		return nil, internalError("获取统计数据失败", err)
	}
	for _, r := range counts {
		report.SubstatCountDistribution[r.Bucket] = r.Count
	}

	return report, nil
}

// Pairing 计算所选副词条同时出现的理论概率（按独立事件相乘）与实际概率
func (s *StatsService) Pairing(ctx context.Context, selected []string) (*PairingReport, error) {
	names := trimNames(selected)
	if len(names) == 0 {
		return nil, newError(ErrInvalidCardinality, "请至少选择一个词条")
	}
	if len(names) > maxPairingStats {
		return nil, newError(ErrInvalidCardinality, "最多只能选择%d个词条", maxPairingStats)
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, newError(ErrDuplicateAffix, "词条 %s 重复", n)
		}
		seen[n] = true
	}

	byName, err := s.catalog.GetStatTypesByNames(ctx, names)
	if err != nil {
		return nil, internalError("计算配对概率失败", err)
	}
	ids := make([]int64, 0, len(names))
	var missing []string
	for _, n := range names {
		st, ok := byName[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		ids = append(ids, st.ID)
	}
	if len(missing) > 0 {
		return nil, newError(ErrUnknownReference, "选择的词条中包含不存在的词条: %s", strings.Join(missing, ", "))
	}

	total, err := s.stats.CountPieces(ctx)
	if err != nil {
		return nil, internalError("计算配对概率失败", err)
	}
	if total == 0 {
		return nil, newError(ErrNoData, "暂无驱动盘数据")
	}

	individual := make(map[string]float64, len(names))
	theoretical := 1.0
	for i, n := range names {
		k, err := s.stats.PiecesWithStat(ctx, ids[i])
		if err != nil {
			return nil, internalError("计算配对概率失败", err)
		}
		p := float64(k) / float64(total)
		theoretical *= p
		individual[n] = roundTo(p*100, 2)
	}

	matched, err := s.stats.PiecesWithAll(ctx, ids)
	if err != nil {
		return nil, internalError("计算配对概率失败", err)
	}
	actual := float64(matched) / float64(total)

	theoreticalPct := roundTo(theoretical*100, 4)
	actualPct := roundTo(actual*100, 4)
	report := &PairingReport{
		Theoretical:             theoreticalPct,
		Actual:                  actualPct,
		Difference:              roundTo(actualPct-theoreticalPct, 4),
		MatchCount:              matched,
		TotalPieces:             total,
		IndividualProbabilities: individual,
		SelectedStats:           names,
	}
	if actual > 0 {
		report.Expectation = int64(math.Round(1 / actual))
	}

	if matched > 0 && matched <= exampleMatchLimit {
		rows, err := s.stats.MatchingExamples(ctx, ids, maxMatchingExamples)
		if err != nil {
			return nil, internalError("计算配对概率失败", err)
		}
		report.MatchingExamples = make([]MatchingExample, 0, len(rows))
		for _, r := range rows {
			report.MatchingExamples = append(report.MatchingExamples, MatchingExample{
				DriveID:  r.DriveID,
				SetName:  r.SetName,
				Position: r.Position,
				MainStat: r.MainStat,
			})
		}
	}
	return report, nil
}

// roundTo 四舍五入到 digits 位小数
func roundTo(v float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(v*pow) / pow
}
