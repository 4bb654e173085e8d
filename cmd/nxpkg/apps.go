package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/disiqueira/gotree/v3"
	"github.com/spf13/cobra"

	"github.com/jchantrell/nxpkg/internal/catalog"
	"github.com/jchantrell/nxpkg/internal/content"
	"github.com/jchantrell/nxpkg/internal/utils"
)

var (
	appsUser          string
	appsContentIndex  int
	appsSetVersion    string
	appsFindType      string
	appsName          string
	appsPublisher     string
	appsIconPath      string
	appsNacpPath      string
	appsStorage       string
	appsVersion       string
	appsSize          uint64
	appsProgramID     string
	appsUnrecorded    bool
	appsPlayDuration  time.Duration
	appsPlayStartedAt string
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Inspect and manage installed applications",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed applications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd.Context())
		if err != nil {
			return err
		}
		defer lib.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPUBLISHER\tVERSION\tCONTENTS\tSIZE")
		apps := lib.registry.Applications()
		for _, app := range apps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				content.FormatID(app.ID()),
				app.Cache.DisplayName,
				app.Cache.DisplayAuthor,
				utils.FormatVersion(app.MaxVersion),
				len(app.MetaStatus),
				utils.FormatSize(app.OccupiedSize.Total()))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%s applications\n", utils.Number(int64(len(apps))))
		return nil
	},
}

var appsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show everything known about one application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lib, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer lib.Close()

		app, err := lib.lookupApplication(args[0])
		if err != nil {
			return err
		}

		var stats content.PlayStats
		if appsUser != "" {
			user, err := parseUserID(appsUser)
			if err != nil {
				return err
			}
			stats, err = lib.registry.UserPlayStats(ctx, app, user)
			if err != nil {
				return err
			}
		} else {
			stats, err = lib.registry.GlobalPlayStats(ctx, app)
			if err != nil {
				return err
			}
		}

		fmt.Print(renderApplication(app, stats).Print())
		return nil
	},
}

var appsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an application, or one of its contents, from the catalog",
	Long: `Remove deletes an application with everything installed under it. With
--content only the content-meta entry at that index (as listed by show) is
removed. Removing the last remaining entry removes the application as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lib, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer lib.Close()

		app, err := lib.lookupApplication(args[0])
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("content") {
			if appsContentIndex < 0 || appsContentIndex >= len(app.MetaStatus) {
				return fmt.Errorf("content index %d out of range, %s has %d contents",
					appsContentIndex, content.FormatID(app.ID()), len(app.MetaStatus))
			}
			return lib.removeContent(ctx, app, appsContentIndex)
		}

		return lib.removeApplication(ctx, app.ID())
	},
}

var appsVersionCmd = &cobra.Command{
	Use:   "version <id>",
	Short: "Show or set the launch-required version of an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lib, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer lib.Close()

		app, err := lib.lookupApplication(args[0])
		if err != nil {
			return err
		}

		if appsSetVersion != "" {
			v, err := utils.ParseVersion(appsSetVersion)
			if err != nil {
				return err
			}
			if utils.CompareVersions(v, app.MaxVersion) > 0 {
				slog.Warn("Launch-required version is newer than any installed content",
					"required", utils.FormatVersion(v),
					"installed", utils.FormatVersion(app.MaxVersion))
			}

			entry := catalog.ApplicationEntry{
				Record:                app.Record,
				Flags:                 app.View.Flags,
				LaunchRequiredVersion: v,
			}
			if err := lib.catalog.PutApplication(ctx, entry); err != nil {
				return err
			}
		}

		if err := lib.registry.UpdateVersion(ctx, app); err != nil {
			return err
		}

		fmt.Printf("installed        %s (%s) .. %s (%s)\n",
			utils.FormatVersion(app.MinVersion), utils.FormatRawVersion(app.MinVersion),
			utils.FormatVersion(app.MaxVersion), utils.FormatRawVersion(app.MaxVersion))
		fmt.Printf("launch required  %s (%s)\n",
			utils.FormatVersion(app.LaunchRequiredVersion), utils.FormatRawVersion(app.LaunchRequiredVersion))
		if app.Misc.DisplayVersion != "" {
			fmt.Printf("display version  %s\n", app.Misc.DisplayVersion)
		}
		return nil
	},
}

var appsFindCmd = &cobra.Command{
	Use:   "find <content-id>",
	Short: "Find the application a program, patch or add-on belongs to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := openLibrary(cmd.Context())
		if err != nil {
			return err
		}
		defer lib.Close()

		id, err := content.ParseID(args[0])
		if err != nil {
			return err
		}

		var app *content.Application
		var ok bool
		if appsFindType == "" {
			app, ok = lib.registry.FindByAnyContent(id)
		} else {
			kind, known := content.ContentMetaTypeByName(appsFindType)
			if !known {
				return fmt.Errorf("unknown content type %q", appsFindType)
			}
			app, ok = lib.registry.FindByContent(id, kind)
		}
		if !ok {
			return fmt.Errorf("no installed application owns %s", content.FormatID(id))
		}

		fmt.Printf("%s  %s\n", content.FormatID(app.ID()), app.Cache.DisplayName)
		return nil
	},
}

var appsRegisterCmd = &cobra.Command{
	Use:   "register <id>",
	Short: "Register a base application in the catalog",
	Long: `Register records an installed base application. The control block and icon
are read from prefixed paths, for example sdmc:/dump/control.nacp.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := content.ParseID(args[0])
		if err != nil {
			return err
		}
		storageID, err := parseStorageID(appsStorage)
		if err != nil {
			return err
		}
		version, err := parseVersionFlag(appsVersion)
		if err != nil {
			return err
		}

		mounts, err := openMounts()
		if err != nil {
			return err
		}

		meta := content.Metadata{Name: appsName, Publisher: appsPublisher}
		if appsIconPath != "" {
			if meta.Icon, err = readPrefixedFile(mounts, appsIconPath); err != nil {
				return err
			}
		}
		if appsNacpPath != "" {
			if meta.Nacp, err = readPrefixedFile(mounts, appsNacpPath); err != nil {
				return err
			}
			if _, err := content.ParseNacp(meta.Nacp); err != nil {
				return fmt.Errorf("reading control block %s: %w", appsNacpPath, err)
			}
		}

		cat, err := catalog.Open(ctx, cfg.Catalog)
		if err != nil {
			return err
		}
		defer cat.Close()

		flags := content.ViewFlagValid | content.ViewFlagHasMainContents | content.ViewFlagHasContentsInstalled | content.ViewFlagCanLaunch
		if storageID == content.StorageIDGameCard {
			flags |= content.ViewFlagIsGameCard | content.ViewFlagIsGameCardInserted
		}
		entry := catalog.ApplicationEntry{
			Record: content.ApplicationRecord{
				ID:          id,
				LastEvent:   content.RecordEventInstalled,
				LastUpdated: uint64(time.Now().Unix()),
			},
			Flags: flags,
		}
		if err := cat.PutApplication(ctx, entry); err != nil {
			return err
		}

		status := content.ContentMetaStatus{ID: id, Version: version, Type: content.ContentMetaTypeApplication, StorageID: storageID}
		if err := cat.PutContentMeta(ctx, status, true); err != nil {
			return err
		}
		if err := putProgram(ctx, cat, status); err != nil {
			return err
		}
		if err := cat.PutMetadata(ctx, id, meta); err != nil {
			return err
		}
		if appsSize > 0 {
			size := content.StorageOccupiedSize{StorageID: storageID, AppSize: appsSize}
			if err := cat.PutOccupiedSize(ctx, id, size); err != nil {
				return err
			}
		}

		slog.Info("Registered application", "id", content.FormatID(id), "storage", storageID.String(), "version", utils.FormatVersion(version))
		return nil
	},
}

var appsInstallCmd = &cobra.Command{
	Use:   "install <content-id> <type>",
	Short: "Record a patch or add-on content entry in the catalog",
	Long: `Install records a content-meta entry such as a Patch or AddOnContent. With
--unrecorded the entry is only visible on its storage and is attached to its
application when the registry scans storages.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := content.ParseID(args[0])
		if err != nil {
			return err
		}
		kind, ok := content.ContentMetaTypeByName(args[1])
		if !ok {
			return fmt.Errorf("unknown content type %q", args[1])
		}
		storageID, err := parseStorageID(appsStorage)
		if err != nil {
			return err
		}
		version, err := parseVersionFlag(appsVersion)
		if err != nil {
			return err
		}

		cat, err := catalog.Open(ctx, cfg.Catalog)
		if err != nil {
			return err
		}
		defer cat.Close()

		status := content.ContentMetaStatus{ID: id, Version: version, Type: kind, StorageID: storageID}
		if err := cat.PutContentMeta(ctx, status, !appsUnrecorded); err != nil {
			return err
		}
		if err := putProgram(ctx, cat, status); err != nil {
			return err
		}

		base := content.BaseApplicationID(id, kind)
		if appsSize > 0 {
			size := content.StorageOccupiedSize{StorageID: storageID}
			switch kind {
			case content.ContentMetaTypePatch:
				size.PatchSize = appsSize
			case content.ContentMetaTypeAddOnContent:
				size.AddOnContentSize = appsSize
			default:
				size.AppSize = appsSize
			}
			if err := cat.PutOccupiedSize(ctx, base, size); err != nil {
				return err
			}
		}

		attrs := []any{"content_id", content.FormatID(id), "type", kind.String(), "application", content.FormatID(base)}
		if kind == content.ContentMetaTypeAddOnContent {
			attrs = append(attrs, "add_on", content.AddOnContentID(id))
		}
		slog.Info("Recorded content", attrs...)
		return nil
	},
}

var appsPlayCmd = &cobra.Command{
	Use:   "play <id>",
	Short: "Record a play session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := content.ParseID(args[0])
		if err != nil {
			return err
		}

		var user *content.UserID
		if appsUser != "" {
			u, err := parseUserID(appsUser)
			if err != nil {
				return err
			}
			user = &u
		}

		launched := time.Now().Add(-appsPlayDuration)
		if appsPlayStartedAt != "" {
			if launched, err = time.Parse(time.RFC3339, appsPlayStartedAt); err != nil {
				return fmt.Errorf("invalid start time: %w", err)
			}
		}

		cat, err := catalog.Open(ctx, cfg.Catalog)
		if err != nil {
			return err
		}
		defer cat.Close()

		if err := cat.RecordPlayEvent(ctx, id, user, launched, appsPlayDuration); err != nil {
			return err
		}

		slog.Info("Recorded play session", "id", content.FormatID(id), "duration", utils.Duration(appsPlayDuration))
		return nil
	},
}

func renderApplication(app *content.Application, stats content.PlayStats) gotree.Tree {
	root := gotree.New(fmt.Sprintf("%s [%s]", app.Cache.DisplayName, content.FormatID(app.ID())))

	if app.Cache.DisplayAuthor != "" {
		root.Add("Publisher: " + app.Cache.DisplayAuthor)
	}
	root.Add("Last event: " + app.Cache.RecordLastEvent)

	flags := root.Add("View flags")
	for _, f := range app.Cache.ViewFlags {
		flags.Add(f)
	}

	versions := root.Add("Versions")
	versions.Add("Installed: " + utils.FormatVersion(app.MinVersion) + " .. " + utils.FormatVersion(app.MaxVersion))
	versions.Add("Launch required: " + utils.FormatVersion(app.LaunchRequiredVersion))
	if app.Misc.DisplayVersion != "" {
		versions.Add("Display: " + app.Misc.DisplayVersion)
	}

	if app.Misc.UserAccountSaveDataSize > 0 || app.Misc.DeviceSaveDataSize > 0 {
		saves := root.Add("Save data")
		saves.Add("User account: " + utils.FormatSize(app.Misc.UserAccountSaveDataSize))
		saves.Add("Device: " + utils.FormatSize(app.Misc.DeviceSaveDataSize))
	}

	contents := root.Add(fmt.Sprintf("Contents (%d)", len(app.MetaStatus)))
	for i, status := range app.MetaStatus {
		node := contents.Add(fmt.Sprintf("[%d] %s %s %s on %s", i, status.Type, content.FormatID(status.ID),
			utils.FormatRawVersion(status.Version), status.StorageID))
		for t := content.ContentType(0); t < content.MaxContentCount; t++ {
			if id, ok := app.Contents[i].Get(t); ok {
				node.Add(fmt.Sprintf("%s: %s", t, id))
			}
		}
	}

	if len(app.OccupiedSize.Storages) > 0 {
		sizes := root.Add("Occupied size: " + utils.FormatSize(app.OccupiedSize.Total()))
		for _, s := range app.OccupiedSize.Storages {
			sizes.Add(fmt.Sprintf("%s: %s", s.StorageID, utils.FormatSize(s.Total())))
		}
	}

	play := root.Add("Play time: " + utils.Duration(time.Duration(stats.TotalPlaySecs)*time.Second))
	if stats.SecsFromLastLaunched > 0 {
		play.Add("Last launched: " + utils.Duration(time.Duration(stats.SecsFromLastLaunched)*time.Second) + " ago")
	}
	if stats.SecsFromFirstLaunched > 0 {
		play.Add("First launched: " + utils.Duration(time.Duration(stats.SecsFromFirstLaunched)*time.Second) + " ago")
	}

	if app.Cache.IconPath != "" {
		root.Add("Icon: " + app.Cache.IconPath)
	}
	return root
}

func parseUserID(s string) (content.UserID, error) {
	var user content.UserID
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(user) {
		return user, fmt.Errorf("invalid user id %q: expected %d hex bytes", s, len(user))
	}
	copy(user[:], raw)
	return user, nil
}

func parseStorageID(name string) (content.StorageID, error) {
	id, ok := content.StorageIDByName(name)
	if !ok {
		return content.StorageIDNone, fmt.Errorf("unknown storage %q", name)
	}
	return id, nil
}

func parseVersionFlag(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return uint32(n), nil
	}
	return utils.ParseVersion(s)
}

func init() {
	appsShowCmd.Flags().StringVar(&appsUser, "user", "", "show play statistics of one user (32 hex digits)")
	appsRemoveCmd.Flags().IntVar(&appsContentIndex, "content", 0, "remove only the content at this index")
	appsVersionCmd.Flags().StringVar(&appsSetVersion, "set", "", "set the launch-required version (v<raw> or major.minor.micro)")
	appsFindCmd.Flags().StringVar(&appsFindType, "type", "", "content-meta type of the id (Application, Patch, AddOnContent)")

	for _, c := range []*cobra.Command{appsRegisterCmd, appsInstallCmd} {
		c.Flags().StringVar(&appsStorage, "storage", "SdCard", "install storage (SdCard, BuiltInUser, GameCard)")
		c.Flags().StringVar(&appsVersion, "version", "", "title version (raw number or major.minor.micro)")
		c.Flags().Uint64Var(&appsSize, "size", 0, "bytes occupied on the storage")
		c.Flags().StringVar(&appsProgramID, "program", "", "content id of the program piece (32 hex digits)")
	}
	appsRegisterCmd.Flags().StringVar(&appsName, "name", "", "display name")
	appsRegisterCmd.Flags().StringVar(&appsPublisher, "publisher", "", "publisher name")
	appsRegisterCmd.Flags().StringVar(&appsIconPath, "icon", "", "prefixed path of the icon")
	appsRegisterCmd.Flags().StringVar(&appsNacpPath, "nacp", "", "prefixed path of the control block")
	appsInstallCmd.Flags().BoolVar(&appsUnrecorded, "unrecorded", false, "leave the entry out of the application record")

	appsPlayCmd.Flags().StringVar(&appsUser, "user", "", "user that played (32 hex digits)")
	appsPlayCmd.Flags().DurationVar(&appsPlayDuration, "duration", 0, "session length")
	appsPlayCmd.Flags().StringVar(&appsPlayStartedAt, "started", "", "session start (RFC 3339), default is now minus duration")

	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsShowCmd)
	appsCmd.AddCommand(appsRemoveCmd)
	appsCmd.AddCommand(appsVersionCmd)
	appsCmd.AddCommand(appsFindCmd)
	appsCmd.AddCommand(appsRegisterCmd)
	appsCmd.AddCommand(appsInstallCmd)
	appsCmd.AddCommand(appsPlayCmd)
}
