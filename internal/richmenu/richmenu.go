// Package richmenu defines and installs the bot's rich menu: four cells that
// switch pedagogical modes or open the course-info bubble.
package richmenu

import (
	"fmt"
	"os"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
)

// LINE rich menu canvas, compact layout. Four equal cells in one row.
const (
	Width      = 2500
	Height     = 843
	cellWidth  = Width / 4
	menuName   = "tcm-emi-main-menu"
	chatBarTag = "功能選單"
)

type cell struct {
	label string
	data  string
}

var cells = []cell{
	{label: "🩺 中醫問答", data: "mode=tcm"},
	{label: "🗣️ 口說練習", data: "mode=speaking"},
	{label: "✍️ 寫作修改", data: "mode=writing"},
	{label: "📋 課務查詢", data: "action=course"},
}

// Definition returns the rich menu create request.
func Definition() *messaging_api.RichMenuRequest {
	areas := make([]messaging_api.RichMenuArea, len(cells))
	for i, c := range cells {
		areas[i] = messaging_api.RichMenuArea{
			Bounds: &messaging_api.RichMenuBounds{
				X:      int64(i * cellWidth),
				Y:      0,
				Width:  cellWidth,
				Height: Height,
			},
			Action: lineutil.NewPostbackAction(c.label, c.data),
		}
	}
	return &messaging_api.RichMenuRequest{
		Size: &messaging_api.RichMenuSize{
			Width:  Width,
			Height: Height,
		},
		Selected:    true,
		Name:        menuName,
		ChatBarText: chatBarTag,
		Areas:       areas,
	}
}

// Installer registers the menu against the LINE platform.
type Installer struct {
	api    *messaging_api.MessagingApiAPI
	blob   *messaging_api.MessagingApiBlobAPI
	logger *logger.Logger
}

// NewInstaller creates an installer for the given channel token.
func NewInstaller(channelToken string, log *logger.Logger) (*Installer, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("richmenu: create messaging client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("richmenu: create blob client: %w", err)
	}
	return &Installer{api: api, blob: blob, logger: log.WithModule("richmenu")}, nil
}

// Install creates the menu, uploads its background image, and sets it as the
// default for all users. Returns the new rich menu ID.
func (i *Installer) Install(imagePath string) (string, error) {
	resp, err := i.api.CreateRichMenu(Definition())
	if err != nil {
		return "", fmt.Errorf("richmenu: create: %w", err)
	}
	id := resp.RichMenuId
	i.logger.WithField("rich_menu_id", id).Info("Rich menu created")

	img, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("richmenu: open image: %w", err)
	}
	defer img.Close()

	if _, err := i.blob.SetRichMenuImage(id, "image/png", img); err != nil {
		return "", fmt.Errorf("richmenu: upload image: %w", err)
	}
	if _, err := i.api.SetDefaultRichMenu(id); err != nil {
		return "", fmt.Errorf("richmenu: set default: %w", err)
	}

	i.logger.WithField("rich_menu_id", id).Info("Rich menu installed as default")
	return id, nil
}
