package processor

import (
	"regexp"
	"strconv"
	"time"
)

// 严格的 “DD/MM” 日期标签；其它格式（如当天的 “14:05”）视为已校验过的时间信息
var dayMonthLabel = regexp.MustCompile(`^(\d{2})/(\d{2})$`)

// IsWithinWindow 判断日期标签是否落在最近 windowDays 天内（按天比较，忽略时分秒）。
// 不匹配 DD/MM 的标签一律放行；月份大于当前月时推断为上一年（年初抓到的去年 12 月新闻）。
// 非法的日/月组合（如 31/04）按窗口外处理。
func IsWithinWindow(label string, windowDays int, now time.Time) bool {
	m := dayMonthLabel.FindStringSubmatch(label)
	if m == nil {
		return true
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])

	year := now.Year()
	if month > int(now.Month()) {
		year--
	}

	date, ok := calendarDate(year, month, day, now.Location())
	if !ok {
		return false
	}
	cutoff := time.Date(now.Year(), now.Month(), now.Day()-windowDays, 0, 0, 0, 0, now.Location())
	return !date.Before(cutoff)
}

// calendarDate 构造日期；time.Date 会对越界的日/月自动进位，这里拒绝这类输入
func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Month() != time.Month(month) || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
