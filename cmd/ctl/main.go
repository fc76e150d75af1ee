// Package main provides the control CLI for a running tunesync server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/tunesync/internal/api/connect"
	"github.com/osa030/tunesync/internal/app/notification"
	"github.com/osa030/tunesync/internal/domain/track"
)

var (
	app     = kingpin.New("tunesync-ctl", "tunesync control client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Control token").Envar("CONTROL_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	playListCmd     = app.Command("play-list", "Play a list of tracks from one of them")
	playListIndex   = playListCmd.Flag("index", "Selected item").Short('i').Default("0").Int()
	playListContext = playListCmd.Flag("context", "Context id of the list").Short('c').String()
	playListForce   = playListCmd.Flag("force", "Rebuild even when the context is active").Bool()
	playListTracks  = playListCmd.Arg("tracks", "Track urls or ids").Required().Strings()

	playPlaylistCmd   = app.Command("play-playlist", "Play a cached library playlist")
	playPlaylistID    = playPlaylistCmd.Arg("playlist-id", "Playlist id").Required().String()
	playPlaylistIndex = playPlaylistCmd.Arg("index", "Selected item").Default("0").Int()
	playPlaylistForce = playPlaylistCmd.Flag("force", "Rebuild even when the playlist is active").Bool()

	preloadCmd      = app.Command("preload", "Preload the engine queue")
	preloadIndex    = preloadCmd.Flag("index", "Start item").Short('i').Default("0").Int()
	preloadForce    = preloadCmd.Flag("force", "Replace a non-empty engine queue").Bool()
	preloadAutoPlay = preloadCmd.Flag("autoplay", "Start playing after preload").Bool()
	preloadTracks   = preloadCmd.Arg("tracks", "Track urls or ids").Required().Strings()

	loadQueueCmd     = app.Command("load-queue", "Replace the engine queue without playing")
	loadQueueContext = loadQueueCmd.Flag("context", "Context id of the list").Short('c').String()
	loadQueueTracks  = loadQueueCmd.Arg("tracks", "Track urls or ids").Required().Strings()

	playTrackCmd = app.Command("play-track", "Play a single track")
	playTrackArg = playTrackCmd.Arg("track", "Track url or id").Required().String()

	pauseCmd  = app.Command("pause", "Pause playback")
	resumeCmd = app.Command("resume", "Resume playback")
	stopCmd   = app.Command("stop", "Stop playback and clear the queue context")

	favoriteCmd   = app.Command("favorite", "Toggle or set the favorite flag of a track")
	favoriteTrack = favoriteCmd.Arg("track", "Track url or id").Required().String()
	favoriteSet   = favoriteCmd.Flag("set", "toggle, on or off").Default("toggle").Enum("toggle", "on", "off")

	favoriteActiveCmd = app.Command("favorite-active", "Toggle the favorite flag of the playing track")

	playlistAddCmd      = app.Command("playlist-add", "Add a track to a playlist")
	playlistAddID       = playlistAddCmd.Arg("playlist-id", "Playlist id").Required().String()
	playlistAddTrack    = playlistAddCmd.Arg("track", "Track url or id").Required().String()
	playlistRemoveCmd   = app.Command("playlist-remove", "Remove a track from a playlist")
	playlistRemoveID    = playlistRemoveCmd.Arg("playlist-id", "Playlist id").Required().String()
	playlistRemoveTrack = playlistRemoveCmd.Arg("track", "Track url or id").Required().String()

	libraryCmd    = app.Command("library", "Load a page of the remote library")
	libraryPage   = libraryCmd.Flag("page", "Page number").Short('p').Default("1").Int()
	librarySearch = libraryCmd.Flag("search", "Search query").Short('s').String()

	playlistsCmd = app.Command("playlists", "List library playlists")
	stateCmd     = app.Command("state", "Show the queue context")
	subscribeCmd = app.Command("subscribe", "Subscribe to notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	if command == subscribeCmd.FullCommand() {
		subscribe(client)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := execute(ctx, client, command); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, client *apiconnect.Client, command string) error {
	switch command {
	case playListCmd.FullCommand():
		res, err := client.PlaySelectedFromList(ctx, &apiconnect.PlayFromListRequest{
			Tracks:    parseTracks(*playListTracks),
			Index:     *playListIndex,
			ContextID: *playListContext,
			Force:     *playListForce,
		})
		return printResult(res, err)
	case playPlaylistCmd.FullCommand():
		res, err := client.PlaySelectedFromList(ctx, &apiconnect.PlayFromListRequest{
			PlaylistID: *playPlaylistID,
			Index:      *playPlaylistIndex,
			Force:      *playPlaylistForce,
		})
		return printResult(res, err)
	case preloadCmd.FullCommand():
		res, err := client.InitializeQueue(ctx, &apiconnect.InitializeQueueRequest{
			Tracks:   parseTracks(*preloadTracks),
			Index:    *preloadIndex,
			Force:    *preloadForce,
			AutoPlay: *preloadAutoPlay,
		})
		return printResult(res, err)
	case loadQueueCmd.FullCommand():
		res, err := client.LoadQueue(ctx, &apiconnect.LoadQueueRequest{
			Tracks:    parseTracks(*loadQueueTracks),
			ContextID: *loadQueueContext,
		})
		return printResult(res, err)
	case playTrackCmd.FullCommand():
		res, err := client.PlayTrack(ctx, &apiconnect.PlayTrackRequest{Track: parseTrack(*playTrackArg)})
		return printResult(res, err)
	case pauseCmd.FullCommand():
		return client.Pause(ctx)
	case resumeCmd.FullCommand():
		return client.Resume(ctx)
	case stopCmd.FullCommand():
		return client.Stop(ctx)
	case favoriteCmd.FullCommand():
		req := &apiconnect.FavoriteRequest{Track: parseTrack(*favoriteTrack)}
		if *favoriteSet != "toggle" {
			want := *favoriteSet == "on"
			req.Favorite = &want
		}
		st, err := client.ToggleFavorite(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("Track %s favorite=%v\n", st.ID, st.IsFavorite)
	case favoriteActiveCmd.FullCommand():
		st, err := client.ToggleActiveFavorite(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Track %s favorite=%v\n", st.ID, st.IsFavorite)
	case playlistAddCmd.FullCommand():
		return client.AddToPlaylist(ctx, &apiconnect.PlaylistMembershipRequest{
			PlaylistID: *playlistAddID,
			Track:      parseTrack(*playlistAddTrack),
		})
	case playlistRemoveCmd.FullCommand():
		return client.RemoveFromPlaylist(ctx, &apiconnect.PlaylistMembershipRequest{
			PlaylistID: *playlistRemoveID,
			Track:      parseTrack(*playlistRemoveTrack),
		})
	case libraryCmd.FullCommand():
		page, err := client.LoadLibraryPage(ctx, &apiconnect.LibraryPageRequest{Page: *libraryPage, Search: *librarySearch})
		if err != nil {
			return err
		}
		for _, t := range page.Items {
			printTrack(t)
		}
		if page.IsLastPage {
			fmt.Println("(last page)")
		}
	case playlistsCmd.FullCommand():
		res, err := client.LoadPlaylists(ctx)
		if err != nil {
			return err
		}
		for _, p := range res.Playlists {
			fmt.Printf("%s  %s (%d tracks)\n", p.ID, p.Name, len(p.Tracks))
		}
	case stateCmd.FullCommand():
		res, err := client.GetState(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Context:        %s\n", orNone(res.State.ContextID))
		fmt.Printf("User activated: %v\n", res.State.UserActivated)
		fmt.Printf("Active track:   %s\n", orNone(res.State.NativeActiveTrackID.String()))
		fmt.Printf("Phase:          %s\n", res.Phase)
	}
	return nil
}

// parseTrack treats anything that looks like a url or uri as the track
// source and everything else as a library id.
func parseTrack(arg string) track.Track {
	if strings.Contains(arg, ":") || strings.Contains(arg, "/") {
		return track.Track{URL: arg}
	}
	return track.Track{ID: track.ID(arg)}
}

func parseTracks(args []string) []track.Track {
	tracks := make([]track.Track, len(args))
	for i, a := range args {
		tracks[i] = parseTrack(a)
	}
	return tracks
}

func printResult(res *apiconnect.ResultResponse, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Outcome: %s (index=%d converged=%v transition=%s)\n", res.Outcome, res.Index, res.Converged, res.TransitionID)
	if res.Error != "" {
		fmt.Printf("Cause: %s\n", res.Error)
	}
	return nil
}

func printTrack(t track.Track) {
	fav := " "
	if t.IsFavorite {
		fav = "*"
	}
	fmt.Printf("%s %-12s %s - %s (%s)\n", fav, t.ID, strings.Join(t.Artists, ", "), t.Title, t.Duration.Truncate(time.Second))
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func subscribe(client *apiconnect.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := client.Subscribe(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer stream.Close()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	for stream.Receive() {
		printNotification(stream.Msg())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

func printNotification(n *notification.Notification) {
	fmt.Printf("\n[Sequence: %d] === %s ===\n", n.SequenceNo, n.Type)
	if n.TransitionID != "" {
		fmt.Printf("  Transition: %s\n", n.TransitionID)
	}
	if n.Phase != "" {
		fmt.Printf("  Phase: %s\n", n.Phase)
	}
	if n.State != nil {
		fmt.Printf("  Context: %s\n", orNone(n.State.ContextID))
		fmt.Printf("  User activated: %v\n", n.State.UserActivated)
		fmt.Printf("  Active track: %s\n", orNone(n.State.NativeActiveTrackID.String()))
	}
	if n.Favorite != nil {
		fmt.Printf("  Track %s favorite=%v\n", n.Favorite.ID, n.Favorite.IsFavorite)
	}
}
