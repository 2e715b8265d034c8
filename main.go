package main

import (
	"context"
	"embed"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/rockpaperscissors-desktop/bindings"
	"github.com/MJE43/rockpaperscissors-desktop/internal/config"
)

//go:embed all:frontend/dist
var assets embed.FS

const (
	docsURL = "https://github.com/MJE43/rockpaperscissors-desktop/blob/main/README.md"
	repoURL = "https://github.com/MJE43/rockpaperscissors-desktop"

	// pending remote submissions get this long to finish on close
	shutdownGrace = 5 * time.Second
)

var (
	appCtx   context.Context
	appCtxMu sync.RWMutex

	dataDir = config.AppDataDir()
)

// buildWindowsOptions configures Windows-specific application settings
func buildWindowsOptions() *windows.Options {
	return &windows.Options{
		BackdropType: windows.Mica,
		Theme:        windows.SystemDefault,
		CustomTheme: &windows.ThemeSettings{
			DarkModeTitleBar:  windows.RGB(24, 24, 37),
			DarkModeTitleText: windows.RGB(230, 230, 240),
			DarkModeBorder:    windows.RGB(60, 60, 80),

			LightModeTitleBar:  windows.RGB(250, 250, 252),
			LightModeTitleText: windows.RGB(20, 20, 30),
			LightModeBorder:    windows.RGB(220, 220, 230),
		},
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,
		DisablePinchZoom:     true,
		IsZoomControlEnabled: false,
		ZoomFactor:           1.0,
		WindowClassName:      "RockPaperScissorsWindow",
	}
}

// buildMacOptions configures macOS-specific application settings
func buildMacOptions() *mac.Options {
	var aboutIcon []byte
	if iconData, err := assets.ReadFile("frontend/dist/assets/logo.png"); err == nil {
		aboutIcon = iconData
	}

	return &mac.Options{
		TitleBar: &mac.TitleBar{
			TitlebarAppearsTransparent: false,
			HideTitle:                  false,
			HideTitleBar:               false,
			FullSizeContent:            false,
			UseToolbar:                 false,
			HideToolbarSeparator:       true,
		},
		WebviewIsTransparent: false,
		WindowIsTranslucent:  false,
		About: &mac.AboutInfo{
			Title: "Rock Paper Scissors",
			Message: "Play rock, paper, scissors against the computer and climb the shared leaderboard.\n\n" +
				"Built with Wails",
			Icon: aboutIcon,
		},
	}
}

// buildLinuxOptions configures Linux-specific application settings
func buildLinuxOptions() *linux.Options {
	var windowIcon []byte
	if iconData, err := assets.ReadFile("frontend/dist/assets/logo.png"); err == nil {
		windowIcon = iconData
	}

	return &linux.Options{
		Icon:                windowIcon,
		WindowIsTranslucent: false,
		WebviewGpuPolicy:    linux.WebviewGpuPolicyOnDemand,
		ProgramName:         "rockpaperscissors",
	}
}

func main() {
	log.Printf("Starting Rock Paper Scissors (Go %s)...", runtime.Version())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	dataDir = cfg.DataDir

	game, err := bindings.NewGameModule(cfg)
	if err != nil {
		log.Fatalf("game module init failed: %v", err)
	}

	startup := func(ctx context.Context) {
		setAppContext(ctx)
		if err := game.Startup(ctx); err != nil {
			log.Printf("game module failed to start: %v", err)
		}
	}

	beforeClose := func(ctx context.Context) (prevent bool) {
		sctx, cancel := context.WithTimeout(ctx, shutdownGrace)
		defer cancel()
		if err := game.Shutdown(sctx); err != nil {
			log.Printf("game module shutdown error: %v", err)
		}
		setAppContext(nil)
		log.Println("Application is closing")
		return false
	}

	if err := wails.Run(&options.App{
		Title:            "Rock Paper Scissors",
		Width:            960,
		Height:           720,
		MinWidth:         720,
		MinHeight:        560,
		WindowStartState: options.Normal,
		BackgroundColour: &options.RGBA{R: 24, G: 24, B: 37, A: 255},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		OnStartup:     startup,
		OnBeforeClose: beforeClose,
		OnDomReady: func(ctx context.Context) {
			log.Println("DOM is ready")
		},
		OnShutdown: func(ctx context.Context) {
			log.Println("Application shutdown complete")
		},

		Menu: buildAppMenu(game),

		Bind: []interface{}{game},

		LogLevel:           logger.INFO,
		LogLevelProduction: logger.ERROR,

		EnableDefaultContextMenu:         false,
		EnableFraudulentWebsiteDetection: false,

		ErrorFormatter: func(err error) any {
			if err == nil {
				return nil
			}
			return err.Error()
		},

		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: "5b1d7e52-rockpaperscissors-desktop",
			OnSecondInstanceLaunch: func(data options.SecondInstanceData) {
				log.Printf("Second instance launch prevented. Args: %v", data.Args)
			},
		},

		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop:     false,
			DisableWebViewDrop: true,
		},

		Windows: buildWindowsOptions(),
		Mac:     buildMacOptions(),
		Linux:   buildLinuxOptions(),
	}); err != nil {
		log.Printf("Error running Wails app: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log.Println("Application exited normally")
}

func buildAppMenu(game *bindings.GameModule) *menu.Menu {
	rootMenu := menu.NewMenu()

	if runtime.GOOS == "darwin" {
		if appMenu := menu.AppMenu(); appMenu != nil {
			rootMenu.Append(appMenu)
		}
	}

	fileMenu := menu.NewMenu()
	fileMenu.AddText("Open Data Directory", keys.CmdOrCtrl("o"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			openPathInExplorer(ctx, dataDir)
		})
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.Quit(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("File", fileMenu))

	gameMenu := menu.NewMenu()
	gameMenu.AddText("Reset My Score", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			if err := game.ResetPlayer(); err != nil {
				log.Printf("reset player: %v", err)
			}
		})
	})
	gameMenu.AddText("Reset Local Leaderboard", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			answer, err := wruntime.MessageDialog(ctx, wruntime.MessageDialogOptions{
				Type:          wruntime.QuestionDialog,
				Title:         "Reset local leaderboard",
				Message:       "Clear every score stored on this computer? The shared leaderboard is not affected.",
				Buttons:       []string{"Reset", "Cancel"},
				DefaultButton: "Cancel",
				CancelButton:  "Cancel",
			})
			if err != nil || answer != "Reset" {
				return
			}
			if err := game.ResetLocalLeaderboard(); err != nil {
				log.Printf("reset local leaderboard: %v", err)
			}
		})
	})
	rootMenu.Append(menu.SubMenu("Game", gameMenu))

	viewMenu := menu.NewMenu()
	viewMenu.AddText("Reload Frontend", keys.CmdOrCtrl("r"), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.WindowReloadApp(ctx)
		})
	})
	viewMenu.AddText("Toggle Fullscreen", keys.Combo("f", keys.CmdOrCtrlKey, keys.ShiftKey), func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			toggleFullscreen(ctx)
		})
	})
	rootMenu.Append(menu.SubMenu("View", viewMenu))

	helpMenu := menu.NewMenu()
	helpMenu.AddText("Documentation", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.BrowserOpenURL(ctx, docsURL)
		})
	})
	helpMenu.AddText("Project Repository", nil, func(_ *menu.CallbackData) {
		withAppContext(func(ctx context.Context) {
			wruntime.BrowserOpenURL(ctx, repoURL)
		})
	})
	rootMenu.Append(menu.SubMenu("Help", helpMenu))

	return rootMenu
}

func openPathInExplorer(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		log.Printf("create %s failed: %v", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		log.Printf("resolve path %s failed: %v", path, err)
		abs = path
	}

	wruntime.BrowserOpenURL(ctx, fileURI(abs))
}

func fileURI(path string) string {
	clean := filepath.ToSlash(path)
	if runtime.GOOS == "windows" && len(clean) > 0 && clean[0] != '/' {
		clean = "/" + clean
	}

	u := url.URL{Scheme: "file", Path: clean}
	return u.String()
}

func toggleFullscreen(ctx context.Context) {
	if wruntime.WindowIsFullscreen(ctx) {
		wruntime.WindowUnfullscreen(ctx)
		return
	}
	wruntime.WindowFullscreen(ctx)
}

func setAppContext(ctx context.Context) {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()
	appCtx = ctx
}

func withAppContext(action func(context.Context)) {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()
	if ctx == nil {
		log.Println("application context not initialised; ignoring menu action")
		return
	}
	action(ctx)
}
