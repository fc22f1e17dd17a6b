package api

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strconv"

	"github.com/theory-cloud/phototheory/pkg/activity"
	"github.com/theory-cloud/phototheory/pkg/catalog"
	"github.com/theory-cloud/phototheory/pkg/media"
	"github.com/theory-cloud/phototheory/pkg/screensaver"
	phototheory "github.com/theory-cloud/phototheory/runtime"
)

type renameRequest struct {
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

type fileNameRequest struct {
	FileName string `json:"fileName"`
}

type resolveResponse struct {
	ResolveStatus screensaver.ResolveState `json:"resolveStatus"`
}

type pageResponse struct {
	Images []screensaver.Image `json:"images"`
	Cursor *string             `json:"cursor"`
}

type activityResponse struct {
	Events []activity.Event `json:"events"`
	Cursor *string          `json:"cursor"`
}

type countResponse struct {
	Images int `json:"images"`
}

// upload stores the first file part of a multipart body, records it in the catalog and adds it
// to the rotation.
func (s *Server) upload(ctx *phototheory.Context) (*phototheory.Response, error) {
	name, part, err := firstFilePart(ctx)
	if err != nil {
		return nil, err
	}
	defer part.Close()

	if !media.ValidName(name) {
		return nil, phototheory.BadRequest(fmt.Sprintf("invalid file name %q", name))
	}
	if _, err := s.catalog.Get(ctx.Context(), name); err == nil {
		return nil, phototheory.Conflict(fmt.Sprintf("image %s already exists", name))
	} else if !errors.Is(err, catalog.ErrImageNotFound) {
		return nil, fmt.Errorf("upload: lookup %s: %w", name, err)
	}

	if err := s.media.Write(name, part, s.maxUploadBytes); err != nil {
		switch {
		case errors.Is(err, media.ErrExists):
			return nil, phototheory.Conflict(fmt.Sprintf("image %s already exists", name))
		case errors.Is(err, media.ErrTooLarge):
			return nil, phototheory.NewError(phototheory.CodeTooLarge, fmt.Sprintf("image exceeds %d bytes", s.maxUploadBytes))
		default:
			return nil, fmt.Errorf("upload: write %s: %w", name, err)
		}
	}

	img, err := s.recordUpload(ctx, name)
	if err != nil {
		if removeErr := s.media.Remove(name); removeErr != nil {
			ctx.Logger().Warn("could not remove rejected upload", map[string]any{
				"image": name,
				"error": removeErr,
			})
		}
		return nil, err
	}

	s.drift(ctx, "insert", name, s.rotation.Insert(img))
	s.record(ctx, activity.Event{Kind: activity.KindUploaded, Image: name})
	ctx.Logger().Info("image uploaded", map[string]any{
		"image":  name,
		"width":  img.Width,
		"height": img.Height,
	})
	return phototheory.JSON(201, img)
}

func (s *Server) recordUpload(ctx *phototheory.Context, name string) (screensaver.Image, error) {
	width, height, err := s.media.Dimensions(name)
	if err != nil {
		if errors.Is(err, media.ErrNotImage) {
			return screensaver.Image{}, phototheory.BadRequest(fmt.Sprintf("%s is not a supported image", name))
		}
		return screensaver.Image{}, fmt.Errorf("upload: dimensions of %s: %w", name, err)
	}

	img := screensaver.Image{Name: name, Width: width, Height: height}
	if err := s.catalog.Save(ctx.Context(), img); err != nil {
		if errors.Is(err, catalog.ErrImageExists) {
			return screensaver.Image{}, phototheory.Conflict(fmt.Sprintf("image %s already exists", name))
		}
		return screensaver.Image{}, fmt.Errorf("upload: save %s: %w", name, err)
	}
	return img, nil
}

// firstFilePart returns the raw file name of the first multipart part and the part itself.
// The name is read from Content-Disposition directly because multipart.Part.FileName strips
// directory components, which would hide traversal attempts.
func firstFilePart(ctx *phototheory.Context) (string, *multipart.Part, error) {
	mediaType, params := ctx.Request.MediaType()
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return "", nil, phototheory.BadRequest("expected a multipart/form-data body")
	}

	reader := multipart.NewReader(bytes.NewReader(ctx.Request.Body), params["boundary"])
	part, err := reader.NextPart()
	if err != nil {
		return "", nil, phototheory.BadRequest("missing file field")
	}

	_, disposition, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil || disposition["filename"] == "" {
		part.Close()
		return "", nil, phototheory.BadRequest("missing file name")
	}
	return disposition["filename"], part, nil
}

func (s *Server) get(ctx *phototheory.Context) (*phototheory.Response, error) {
	name := ctx.Query("fileName")
	if name == "" {
		return nil, phototheory.BadRequest("fileName is required")
	}

	img, err := s.catalog.Get(ctx.Context(), name)
	if err != nil {
		if errors.Is(err, catalog.ErrImageNotFound) {
			return nil, phototheory.NotFound(fmt.Sprintf("could not find image with file name %s", name))
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return phototheory.JSON(200, img)
}

// paginated lists the catalog in name order. count defaults to the catalog's page size and
// after is the cursor returned by the previous page.
func (s *Server) paginated(ctx *phototheory.Context) (*phototheory.Response, error) {
	limit := 0
	if raw := ctx.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, phototheory.BadRequest("count must be a non-negative integer")
		}
		limit = n
	}

	page, err := s.catalog.Page(ctx.Context(), catalog.PageQuery{Limit: limit, Cursor: ctx.Query("after")})
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidCursor) {
			return nil, phototheory.BadRequest("invalid cursor")
		}
		return nil, fmt.Errorf("paginated: %w", err)
	}

	out := pageResponse{Images: page.Images}
	if out.Images == nil {
		out.Images = []screensaver.Image{}
	}
	if page.NextCursor != "" {
		out.Cursor = &page.NextCursor
	}
	return phototheory.JSON(200, out)
}

// rename moves the file first and rolls it back if the catalog refuses the new name.
func (s *Server) rename(ctx *phototheory.Context, req renameRequest) (screensaver.Image, error) {
	if !media.ValidName(req.OldName) || !media.ValidName(req.NewName) {
		return screensaver.Image{}, phototheory.BadRequest("oldName and newName must be plain file names")
	}

	img, err := s.catalog.Get(ctx.Context(), req.OldName)
	if err != nil {
		if errors.Is(err, catalog.ErrImageNotFound) {
			return screensaver.Image{}, phototheory.NotFound(fmt.Sprintf("could not find image with file name %s", req.OldName))
		}
		return screensaver.Image{}, fmt.Errorf("rename: lookup %s: %w", req.OldName, err)
	}
	if req.OldName == req.NewName {
		return img, nil
	}

	if err := s.media.Rename(req.OldName, req.NewName); err != nil {
		switch {
		case errors.Is(err, media.ErrExists):
			return screensaver.Image{}, phototheory.Conflict(fmt.Sprintf("image %s already exists", req.NewName))
		case errors.Is(err, media.ErrNotFound):
			return screensaver.Image{}, phototheory.NotFound(fmt.Sprintf("file %s is missing on disk", req.OldName))
		default:
			return screensaver.Image{}, fmt.Errorf("rename: move %s: %w", req.OldName, err)
		}
	}

	if err := s.catalog.Rename(ctx.Context(), req.OldName, req.NewName); err != nil {
		if rollbackErr := s.media.Rename(req.NewName, req.OldName); rollbackErr != nil {
			ctx.Logger().Error("rename rollback failed", map[string]any{
				"from":  req.NewName,
				"to":    req.OldName,
				"error": rollbackErr,
			})
		}
		switch {
		case errors.Is(err, catalog.ErrImageExists):
			return screensaver.Image{}, phototheory.Conflict(fmt.Sprintf("image %s already exists", req.NewName))
		case errors.Is(err, catalog.ErrImageNotFound):
			return screensaver.Image{}, phototheory.NotFound(fmt.Sprintf("could not find image with file name %s", req.OldName))
		default:
			return screensaver.Image{}, fmt.Errorf("rename: catalog %s: %w", req.OldName, err)
		}
	}

	s.drift(ctx, "rename", req.OldName, s.rotation.Rename(req.OldName, req.NewName))
	s.record(ctx, activity.Event{Kind: activity.KindRenamed, Image: req.NewName, PreviousName: req.OldName})
	img.Name = req.NewName
	return img, nil
}

// delete removes the catalog record, then the file. Once the record is gone the image leaves the
// rotation too; a file that cannot be removed stays behind as an orphan and is only logged.
func (s *Server) delete(ctx *phototheory.Context, req fileNameRequest) (fileNameRequest, error) {
	if !media.ValidName(req.FileName) {
		return fileNameRequest{}, phototheory.BadRequest("fileName must be a plain file name")
	}

	if err := s.catalog.Delete(ctx.Context(), req.FileName); err != nil {
		if errors.Is(err, catalog.ErrImageNotFound) {
			return fileNameRequest{}, phototheory.NotFound(fmt.Sprintf("could not find image with file name %s", req.FileName))
		}
		return fileNameRequest{}, fmt.Errorf("delete: catalog %s: %w", req.FileName, err)
	}

	switch err := s.media.Remove(req.FileName); {
	case errors.Is(err, media.ErrNotFound):
		ctx.Logger().Warn("deleted image had no file on disk", map[string]any{"image": req.FileName})
	case err != nil:
		ctx.Logger().Warn("deleted image file left on disk", map[string]any{"image": req.FileName, "error": err})
	}

	s.drift(ctx, "delete", req.FileName, s.rotation.Delete(req.FileName))
	s.record(ctx, activity.Event{Kind: activity.KindDeleted, Image: req.FileName})
	return req, nil
}

func (s *Server) current(*phototheory.Context) (*phototheory.Response, error) {
	img, ok := s.rotation.Current()
	if !ok {
		return nil, phototheory.NotFound("no current image")
	}
	return phototheory.JSON(200, img)
}

func (s *Server) resolve(_ *phototheory.Context, req fileNameRequest) (resolveResponse, error) {
	if req.FileName == "" {
		return resolveResponse{}, phototheory.BadRequest("fileName is required")
	}
	return resolveResponse{ResolveStatus: s.rotation.Resolve(req.FileName)}, nil
}

func (s *Server) updateCanon(ctx *phototheory.Context) (*phototheory.Response, error) {
	images, err := s.canon.Sync(ctx.Context())
	if err != nil {
		if errors.Is(err, media.ErrNotImage) {
			return nil, phototheory.NewError(phototheory.CodeConflict, err.Error())
		}
		return nil, fmt.Errorf("update canon: %w", err)
	}
	s.record(ctx, activity.Event{Kind: activity.KindCanonSynced, Count: len(images)})
	return phototheory.JSON(200, countResponse{Images: len(images)})
}

func (s *Server) reseed(ctx *phototheory.Context) (*phototheory.Response, error) {
	n, err := s.reseeder.Reseed(ctx.Context())
	if err != nil {
		return nil, fmt.Errorf("reseed: %w", err)
	}
	s.record(ctx, activity.Event{Kind: activity.KindReseeded, Count: n})
	return phototheory.JSON(200, countResponse{Images: n})
}

// recentActivity lists the history newest first. kind filters, count and after page like
// paginated.
func (s *Server) recentActivity(ctx *phototheory.Context) (*phototheory.Response, error) {
	limit := 0
	if raw := ctx.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, phototheory.BadRequest("count must be a non-negative integer")
		}
		limit = n
	}

	page, err := s.activity.Recent(ctx.Context(), activity.Query{
		Kind:   ctx.Query("kind"),
		Limit:  limit,
		Cursor: ctx.Query("after"),
	})
	if err != nil {
		if errors.Is(err, activity.ErrInvalidCursor) {
			return nil, phototheory.BadRequest("invalid cursor")
		}
		return nil, fmt.Errorf("activity: %w", err)
	}

	out := activityResponse{Events: page.Events}
	if out.Events == nil {
		out.Events = []activity.Event{}
	}
	if page.NextCursor != "" {
		out.Cursor = &page.NextCursor
	}
	return phototheory.JSON(200, out)
}

// serveImage streams a stored file. Names with directory components never match a file.
func (s *Server) serveImage(ctx *phototheory.Context) (*phototheory.Response, error) {
	name := ctx.Param("name")
	if !media.ValidName(name) {
		return nil, phototheory.NotFound("image not found")
	}

	f, err := s.media.Open(name)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return nil, phototheory.NotFound("image not found")
		}
		return nil, fmt.Errorf("serve image %s: %w", name, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp := phototheory.Stream(200, f, contentType)
	resp.Headers["cache-control"] = []string{"public, max-age=3600"}
	return resp, nil
}
