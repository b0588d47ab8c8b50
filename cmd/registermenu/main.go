// Command registermenu creates the bot's rich menu, uploads its background
// image, and sets it as the default menu for all users.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tcm-emi/linebot-go/internal/config"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/richmenu"
)

var imageFlag = flag.String("image", "assets/richmenu.png", "Path to the 2500x843 PNG background image")

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Registering rich menu")

	installer, err := richmenu.NewInstaller(cfg.LineChannelToken, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create installer")
	}

	id, err := installer.Install(*imageFlag)
	if err != nil {
		log.WithError(err).Fatal("Rich menu installation failed")
	}

	log.WithField("rich_menu_id", id).Info("Rich menu registered")
}
