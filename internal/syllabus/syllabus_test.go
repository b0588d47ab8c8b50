package syllabus

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `{
  "acupoint_lecture_date": "2026-04-01",
  "tcm_related_keywords": ["中醫", "經絡", "氣", "陰陽", "五行", "課程", "meridian", "qi"],
  "course_info": {
    "grading": "期中 30%、期末 30%、練習 40%",
    "schedule": "每週三 10:10",
    "assignments": "次週二前繳交"
  },
  "lectures": [
    {"date": "2026-03-04", "title": "Yin-Yang and the Five Elements", "keywords": ["five elements", "陰陽學說"]},
    {"date": "2026-03-25", "title": "Meridians and Collaterals", "keywords": ["meridian system", "十二經脈"]},
    {"date": "2026-04-01", "title": "Acupoints and Point Location", "keywords": ["acupoint", "穴位定位"]},
    {"date": "bogus", "title": "ignored", "keywords": []}
  ]
}`

func mustParse(t *testing.T) *Syllabus {
	t.Helper()
	s, err := Parse([]byte(testConfig))
	require.NoError(t, err)
	return s
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParse(t *testing.T) {
	t.Parallel()

	s := mustParse(t)
	// The bogus-date entry is skipped.
	assert.Len(t, s.Lectures(), 3)
	assert.Equal(t, "期中 30%、期末 30%、練習 40%", s.Info().Grading)

	_, err := Parse([]byte("not json"))
	assert.Error(t, err)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	t.Parallel()

	s, err := Load("/nonexistent/syllabus.json")
	require.NoError(t, err)
	assert.Empty(t, s.Lectures())
	assert.False(t, s.IsOffTopic("中醫的氣是什麼"))
}

func TestAllowedLectures(t *testing.T) {
	t.Parallel()

	s := mustParse(t)

	assert.Empty(t, s.AllowedLectures(day("2026-02-01")))
	assert.Len(t, s.AllowedLectures(day("2026-03-04")), 1)
	assert.Len(t, s.AllowedLectures(day("2026-05-01")), 3)
}

func TestCurrentWeekLecture(t *testing.T) {
	t.Parallel()

	s := mustParse(t)

	_, ok := s.CurrentWeekLecture(day("2026-02-01"))
	assert.False(t, ok)

	lec, ok := s.CurrentWeekLecture(day("2026-03-26"))
	require.True(t, ok)
	assert.Equal(t, "Meridians and Collaterals", lec.Title)

	next, ok := s.NextLecture(day("2026-03-26"))
	require.True(t, ok)
	assert.Equal(t, "Acupoints and Point Location", next.Title)
}

func TestFutureTopicReply(t *testing.T) {
	t.Parallel()

	s := mustParse(t)

	tests := []struct {
		name  string
		text  string
		today string
		want  bool
	}{
		{"future lecture keyword", "請問穴位定位怎麼找", "2026-03-10", true},
		{"english keyword case-insensitive", "What is an Acupoint?", "2026-03-10", true},
		{"already taught", "穴位定位怎麼找", "2026-04-02", false},
		{"no lecture keyword", "氣是什麼", "2026-03-10", false},
		{"empty text", "  ", "2026-03-10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reply, ok := s.FutureTopicReply(tt.text, day(tt.today))
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Contains(t, reply, "2026-04-01")
				assert.Contains(t, reply, "Acupoints and Point Location")
			}
		})
	}
}

func TestIsOffTopic(t *testing.T) {
	t.Parallel()

	s := mustParse(t)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"tcm keyword", "經絡是什麼", false},
		{"english keyword", "explain the meridian pathways", false},
		{"lecture keyword counts as on-topic", "tell me about the five elements", false},
		{"chitchat", "今天晚餐吃什麼好", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.IsOffTopic(tt.text))
		})
	}
}

func TestIsCourseInquiry(t *testing.T) {
	t.Parallel()

	s := mustParse(t)

	assert.True(t, s.IsCourseInquiry("本週重點是什麼"))
	assert.True(t, s.IsCourseInquiry("期中考試的範圍"))
	assert.True(t, s.IsCourseInquiry("When is the assignment deadline?"))
	assert.False(t, s.IsCourseInquiry("氣虛的症狀"))
	assert.False(t, s.IsCourseInquiry(""))
}

func TestRetrievalInstructions(t *testing.T) {
	t.Parallel()

	s := mustParse(t)

	before := s.RetrievalInstructions(day("2026-03-10"))
	assert.Contains(t, before, "2026-03-10")
	assert.Contains(t, before, "Academic sources only")
	// Acupoint progression rule applies before the acupoint lecture.
	assert.Contains(t, before, "穴位課程日期為 2026-04-01")

	after := s.RetrievalInstructions(day("2026-04-02"))
	assert.NotContains(t, after, "教學進度遞增原則")
}

func TestWritingInstructions(t *testing.T) {
	t.Parallel()

	got := Default().WritingInstructions()
	assert.True(t, strings.Contains(got, "Markdown"))
	assert.Contains(t, got, "寫作修訂")
}
