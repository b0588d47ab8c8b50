package syllabus

import (
	"fmt"
	"strings"
	"time"
)

// RetrievalInstructions builds the retrieval and answering rules injected into
/// every assistant request: date lockdown, academic sources only, citations,
// and the acupoint progression rule before the acupoint lecture date.
func (s *Syllabus) RetrievalInstructions(today time.Time) string {
	day := truncateToDay(today)

	var b strings.Builder
	b.WriteString("【檢索與回答規則】\n")
	fmt.Fprintf(&b, "1. 教材檢索範圍：僅使用「講義/教材標題日期 ≤ 今日」的內容；今日為 %s。\n", day.Format(dateLayout))
	b.WriteString("2. 若需引用外部來源，僅限學術資源：WHO TCM database、PubMed、NCCIH 等（Academic sources only）。\n")
	b.WriteString("3. 回答末尾請提供參考資料出處。")

	if !s.acupointDate.IsZero() && day.Before(s.acupointDate) {
		fmt.Fprintf(&b,
			"\n4. 教學進度遞增原則：目前尚未教授「穴位」課程（穴位課程日期為 %s），"+
				"回答時請預設學生不具備穴位知識；若問題涉及穴位，可簡要說明將在後續課程講解，並引導複習已教內容。",
			s.acupointDate.Format(dateLayout),
		)
	}
	return b.String()
}

// WritingInstructions builds the system prompt for the writing-revision mode.
// This mode never touches the lecture knowledge base.
func (s *Syllabus) WritingInstructions() string {
	return "你是英文學術寫作助教，協助 EMI 中醫課程的學生修改英文句子與段落。\n" +
		"收到學生的句子或段落後：\n" +
		"1. 句子正確且自然：給予稱讚，並歡迎繼續練習。\n" +
		"2. 句子有錯誤：先鼓勵，再列出更正後的句子，並用 1～2 句話解釋修改原因，最後歡迎繼續貼上其他句子。\n" +
		"請使用 Markdown 格式（粗體標示修正處、條列說明）讓回饋易讀。\n" +
		"只處理寫作修訂，不回答中醫知識問題。"
}
