package lineutil

import "github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

// Quick reply sets for the bot's conversational flows. Labels double as the
// message text so the text handlers can match them verbatim.

// MainQuickReplies returns the default quick reply row attached to most
// answers: mode switches plus course operations.
func MainQuickReplies() []QuickReplyItem {
	return []QuickReplyItem{
		{Action: NewMessageAction("口說練習", "口說練習")},
		{Action: NewMessageAction("寫作修改", "寫作修改")},
		{Action: NewMessageAction("課務查詢", "課務查詢")},
		{Action: NewMessageAction("本週重點", "本週重點")},
	}
}

// SpeakingQuickReplies returns the practice-loop prompts used after speech
// feedback.
func SpeakingQuickReplies() []QuickReplyItem {
	return []QuickReplyItem{
		{Action: NewMessageAction("練習下一句", "練習下一句")},
		{Action: NewMessageAction("結束練習", "結束練習")},
	}
}

// QuizOfferQuickReplies returns the yes/no prompt appended after TCM answers.
func QuizOfferQuickReplies() []QuickReplyItem {
	return []QuickReplyItem{
		{Action: NewMessageAction("是", "是")},
		{Action: NewMessageAction("否", "否")},
	}
}

// ReviewOfferQuickReplies returns the prompt for offering a review note.
func ReviewOfferQuickReplies() []QuickReplyItem {
	return []QuickReplyItem{
		{Action: NewMessageAction("要", "要複習筆記")},
		{Action: NewMessageAction("不要", "不要複習筆記")},
	}
}

// WritingQuickReplies returns the prompts shown while in writing-revision mode.
func WritingQuickReplies() []QuickReplyItem {
	return []QuickReplyItem{
		{Action: NewMessageAction("離開模式", "離開模式")},
		{Action: NewMessageAction("繼續練習", "繼續練習")},
	}
}

// TextWithMainQuickReplies is the most common reply shape: text plus the
// default quick reply row.
func TextWithMainQuickReplies(text string) *messaging_api.TextMessage {
	return NewTextMessageWithQuickReply(text, MainQuickReplies()...)
}
