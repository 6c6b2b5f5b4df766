package timelinesync

import (
	"context"
	"io"

	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
	"github.com/c0deZ3R0/timeline-sync-kit/feed"
)

// AddVideoResource registers a video URL with the project's shared media
// registry. Duplicate URLs are ignored locally and not re-written.
func (s *Store) AddVideoResource(ctx context.Context, url string) error {
	return s.addResource(ctx, feed.AssetVideos, url)
}

// AddAudioResource registers an audio URL with the project's shared media
// registry.
func (s *Store) AddAudioResource(ctx context.Context, url string) error {
	return s.addResource(ctx, feed.AssetAudios, url)
}

// AddImageResource registers an image URL with the project's shared media
// registry.
func (s *Store) AddImageResource(ctx context.Context, url string) error {
	return s.addResource(ctx, feed.AssetImages, url)
}

func (s *Store) addResource(ctx context.Context, slot feed.AssetSlot, url string) error {
	s.mu.Lock()
	var list *[]string
	switch slot {
	case feed.AssetVideos:
		list = &s.videos
	case feed.AssetAudios:
		list = &s.audios
	case feed.AssetImages:
		list = &s.images
	default:
		s.mu.Unlock()
		return nil
	}
	before := len(*list)
	*list = appendURL(*list, url)
	dup := len(*list) == before
	projectID := s.projectID
	s.mu.Unlock()

	if dup {
		return nil
	}
	if projectID == "" {
		err := syncErrors.NewMissingProjectError(syncErrors.OpAddAsset)
		s.log.LogError(ctx, err, "skipping asset write")
		return nil
	}
	err := s.opts.Remote.AddAssetURL(ctx, projectID, slot, url)
	s.metrics.RecordRemoteWrite(string(syncErrors.OpAddAsset), err)
	if err != nil {
		s.log.LogError(ctx, err, "asset write failed")
		return syncErrors.NewRemoteWriteError(syncErrors.OpAddAsset, err)
	}
	return nil
}

// UploadResource stores the media payload in the configured asset store and
// registers the resulting URL. The returned URL is durable and shareable
// across sessions.
func (s *Store) UploadResource(ctx context.Context, slot feed.AssetSlot, name string, r io.Reader) (string, error) {
	if s.opts.Assets == nil {
		return "", syncErrors.New(syncErrors.OpAddAsset, errNoAssetStore)
	}
	url, err := s.opts.Assets.Upload(ctx, string(slot), name, r)
	if err != nil {
		s.remoteWriteFailed(ctx, syncErrors.OpAddAsset, err)
		return "", syncErrors.NewRemoteWriteError(syncErrors.OpAddAsset, err)
	}
	return url, s.addResource(ctx, slot, url)
}

// VideoResources returns the registered video URLs.
func (s *Store) VideoResources() []string { return s.resources(feed.AssetVideos) }

// AudioResources returns the registered audio URLs.
func (s *Store) AudioResources() []string { return s.resources(feed.AssetAudios) }

// ImageResources returns the registered image URLs.
func (s *Store) ImageResources() []string { return s.resources(feed.AssetImages) }

func (s *Store) resources(slot feed.AssetSlot) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch slot {
	case feed.AssetVideos:
		return append([]string(nil), s.videos...)
	case feed.AssetAudios:
		return append([]string(nil), s.audios...)
	case feed.AssetImages:
		return append([]string(nil), s.images...)
	}
	return nil
}
