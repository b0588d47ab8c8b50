// Package syllabus implements the time-aware course lockdown. Lecture material
// is only retrievable once its lecture date has passed, questions about future
// lectures get a redirect, and questions unrelated to the course are filtered.
package syllabus

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// OffTopicReply is sent when a question matches no course or TCM keyword.
const OffTopicReply = "這個問題與課程內容無關喔～本機器人僅供學業使用，歡迎詢問中醫課程相關的問題！"

const dateLayout = "2006-01-02"

// Lecture is one syllabus entry.
type Lecture struct {
	Date     time.Time
	Title    string
	Keywords []string
}

// CourseInfo holds the canned course-operations answers.
type CourseInfo struct {
	Grading     string `json:"grading"`
	Schedule    string `json:"schedule"`
	Assignments string `json:"assignments"`
}

// Syllabus is the loaded course configuration. Immutable after load.
type Syllabus struct {
	acupointDate time.Time
	lectures     []Lecture
	tcmKeywords  []string
	courseInfo   CourseInfo
}

type fileConfig struct {
	AcupointLectureDate string       `json:"acupoint_lecture_date"`
	Lectures            []fileEntry  `json:"lectures"`
	TCMRelatedKeywords  []string     `json:"tcm_related_keywords"`
	CourseInfo          CourseInfo   `json:"course_info"`
}

type fileEntry struct {
	Date     string   `json:"date"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
}

// Default returns the built-in fallback syllabus used when no config file is
// available. It carries the base TCM keyword set and no lecture entries.
func Default() *Syllabus {
	acupoint, _ := time.Parse(dateLayout, "2026-04-01")
	return &Syllabus{
		acupointDate: acupoint,
		tcmKeywords: []string{
			"中醫", "TCM", "經絡", "氣", "針灸", "穴位", "陰陽", "五行", "課程", "講義",
		},
	}
}

// Load reads the syllabus config from a JSON file. A missing file falls back
// to Default(); malformed JSON is an error.
func Load(path string) (*Syllabus, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("syllabus: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a syllabus from raw JSON config bytes.
func Parse(data []byte) (*Syllabus, error) {
	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("syllabus: parse config: %w", err)
	}

	s := Default()
	if cfg.AcupointLectureDate != "" {
		d, err := time.Parse(dateLayout, cfg.AcupointLectureDate)
		if err != nil {
			return nil, fmt.Errorf("syllabus: acupoint_lecture_date: %w", err)
		}
		s.acupointDate = d
	}
	if len(cfg.TCMRelatedKeywords) > 0 {
		s.tcmKeywords = cfg.TCMRelatedKeywords
	}
	s.courseInfo = cfg.CourseInfo

	for _, e := range cfg.Lectures {
		d, err := time.Parse(dateLayout, e.Date)
		if err != nil {
			// Skip entries with unparseable dates, matching lenient load.
			continue
		}
		s.lectures = append(s.lectures, Lecture{Date: d, Title: e.Title, Keywords: e.Keywords})
	}
	sort.Slice(s.lectures, func(i, j int) bool {
		return s.lectures[i].Date.Before(s.lectures[j].Date)
	})
	return s, nil
}

// Lectures returns all lecture entries in date order.
func (s *Syllabus) Lectures() []Lecture {
	return s.lectures
}

// Info returns the canned course-operations answers.
func (s *Syllabus) Info() CourseInfo {
	return s.courseInfo
}

// AllowedLectures returns the lectures whose date is on or before today.
func (s *Syllabus) AllowedLectures(today time.Time) []Lecture {
	day := truncateToDay(today)
	var out []Lecture
	for _, lec := range s.lectures {
		if !lec.Date.After(day) {
			out = append(out, lec)
		}
	}
	return out
}

// CurrentWeekLecture returns the most recent lecture already held, used as the
// weekly-focus topic and the fallback quiz topic.
func (s *Syllabus) CurrentWeekLecture(today time.Time) (Lecture, bool) {
	allowed := s.AllowedLectures(today)
	if len(allowed) == 0 {
		return Lecture{}, false
	}
	return allowed[len(allowed)-1], true
}

// NextLecture returns the first lecture still in the future.
func (s *Syllabus) NextLecture(today time.Time) (Lecture, bool) {
	day := truncateToDay(today)
	for _, lec := range s.lectures {
		if lec.Date.After(day) {
			return lec, true
		}
	}
	return Lecture{}, false
}

// FutureTopicReply checks whether the question touches a future lecture's
// keywords. If so it returns the redirect message to show instead of running
// the AI path.
func (s *Syllabus) FutureTopicReply(text string, today time.Time) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	day := truncateToDay(today)
	lower := strings.ToLower(text)

	for _, lec := range s.lectures {
		if !lec.Date.After(day) {
			continue
		}
		for _, kw := range lec.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				reply := fmt.Sprintf(
					"這部分屬於 %s 的課程（%s），我們到時候會詳細講解喔！建議先複習本週的內容。",
					lec.Date.Format(dateLayout), lec.Title,
				)
				return reply, true
			}
		}
	}
	return "", false
}

// IsOffTopic reports whether the question matches no course or TCM keyword.
// Lecture keywords count as on-topic so scheduled material is never filtered.
func (s *Syllabus) IsOffTopic(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if len(s.tcmKeywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range s.tcmKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	for _, lec := range s.lectures {
		for _, kw := range lec.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return false
			}
		}
	}
	return true
}

var courseInquiryKeywords = []string{
	"課務", "課務查詢", "本週重點", "這週重點", "評分", "成績", "評量",
	"作業", "報告繳交", "考試", "期中", "期末", "課表", "上課時間", "進度",
	"grading", "assignment", "schedule", "deadline",
}

// IsCourseInquiry reports whether the text is a grading / schedule /
// assignment / weekly-focus intent.
func (s *Syllabus) IsCourseInquiry(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range courseInquiryKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// truncateToDay normalizes to UTC midnight so comparisons against the
// UTC-parsed lecture dates are calendar-exact.
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
