package media

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"honestai/internal/blob"
	"honestai/internal/models"
)

const sniffLen = 512

var errTooLarge = errors.New("file too large")

// Service owns uploads and analysis results. Every read is scoped to the
// calling user.
type Service struct {
	db       *sql.DB
	blobs    blob.Store
	maxBytes int64
}

// NewService builds the ownership layer over db and blobs. maxBytes <= 0
// disables the upload size limit.
func NewService(db *sql.DB, blobs blob.Store, maxBytes int64) *Service {
	return &Service{db: db, blobs: blobs, maxBytes: maxBytes}
}

// StoreUpload writes the bytes of r under the user's namespace and records the upload.
func (s *Service) StoreUpload(ctx context.Context, user *models.User, displayName string, r io.Reader) (*models.Upload, error) {
	if user == nil || user.ID <= 0 {
		return nil, models.ErrUnauthorized
	}
	name, err := SanitizeFileName(displayName)
	if err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: read upload: %w", models.ErrStorageFailure, err)
	}
	head = head[:n]
	contentType := mimetype.Detect(head).String()

	hasher := blake3.New(32, nil)
	limited := &limitedReader{r: io.MultiReader(bytes.NewReader(head), r), max: s.maxBytes}
	body := io.TeeReader(limited, hasher)

	key := blobKey(user.ID, name)
	size, err := s.blobs.Put(ctx, key, body, contentType)
	if err != nil {
		if limited.exceeded || errors.Is(err, errTooLarge) {
			return nil, fmt.Errorf("%w: file exceeds %s", models.ErrValidation, humanize.IBytes(uint64(s.maxBytes)))
		}
		return nil, fmt.Errorf("%w: store %s: %w", models.ErrStorageFailure, key, err)
	}

	upload := models.Upload{
		UserID:      user.ID,
		FileName:    name,
		StoredPath:  key,
		ContentType: contentType,
		Size:        size,
		ContentHash: hex.EncodeToString(hasher.Sum(nil)),
		UploadedAt:  time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (user_id, filename, stored_path, content_type, size, content_hash, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		upload.UserID, upload.FileName, upload.StoredPath, upload.ContentType, upload.Size, upload.ContentHash, upload.UploadedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: record upload: %w", models.ErrStorageFailure, err)
	}
	if upload.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("%w: upload id: %w", models.ErrStorageFailure, err)
	}
	log.Info("upload stored",
		"user_id", user.ID,
		"filename", name,
		"content_type", contentType,
		"size", humanize.Bytes(uint64(size)),
	)
	return &upload, nil
}

// FindOwnedUpload returns the user's most recent upload named filename whose
// bytes are still present.
func (s *Service) FindOwnedUpload(ctx context.Context, user *models.User, filename string) (*models.Upload, error) {
	if user == nil || user.ID <= 0 {
		return nil, models.ErrUnauthorized
	}
	name, err := SanitizeFileName(filename)
	if err != nil {
		// a name that could never have been stored
		return nil, models.ErrNotFound
	}
	// lookups go by the sanitized name so "a/b.wav" cannot resolve to "b.wav"
	if name != strings.TrimSpace(filename) {
		return nil, models.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, filename, stored_path, content_type, size, content_hash, uploaded_at
		 FROM uploads WHERE user_id = ? AND filename = ?
		 ORDER BY uploaded_at DESC, id DESC LIMIT 1`,
		user.ID, name,
	)
	var u models.Upload
	if err := row.Scan(&u.ID, &u.UserID, &u.FileName, &u.StoredPath, &u.ContentType, &u.Size, &u.ContentHash, &u.UploadedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("query upload: %w", err)
	}

	ok, err := s.blobs.Exists(ctx, u.StoredPath)
	if err != nil {
		return nil, fmt.Errorf("%w: check blob: %w", models.ErrStorageFailure, err)
	}
	if !ok {
		log.Warn("upload row without blob", "user_id", user.ID, "upload_id", u.ID)
		return nil, models.ErrNotFound
	}
	return &u, nil
}

// OpenUpload materializes the upload bytes as a local file for collaborators.
// release must be called when done.
func (s *Service) OpenUpload(ctx context.Context, user *models.User, upload *models.Upload) (string, func(), error) {
	if user == nil || upload == nil || upload.UserID != user.ID {
		return "", nil, models.ErrNotFound
	}
	path, release, err := s.blobs.LocalPath(ctx, upload.StoredPath)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return "", nil, models.ErrNotFound
		}
		return "", nil, fmt.Errorf("%w: open blob: %w", models.ErrStorageFailure, err)
	}
	return path, release, nil
}

// Outcome is what the collaborators produced for one analysis run.
type Outcome struct {
	Transcript    string
	TruthScore    float64
	FacesDetected *int
}

// RecordAnalysis persists an immutable result for an upload owned by user.
func (s *Service) RecordAnalysis(ctx context.Context, user *models.User, upload *models.Upload, out Outcome) (*models.AnalysisResult, error) {
	if user == nil || upload == nil || upload.UserID != user.ID {
		return nil, models.ErrNotFound
	}
	result := models.AnalysisResult{
		UploadID:      upload.ID,
		UserID:        user.ID,
		FileName:      upload.FileName,
		Transcript:    out.Transcript,
		TruthScore:    out.TruthScore,
		FacesDetected: out.FacesDetected,
		AnalyzedAt:    time.Now().UTC(),
	}
	var faces sql.NullInt64
	if out.FacesDetected != nil {
		faces = sql.NullInt64{Int64: int64(*out.FacesDetected), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (upload_id, user_id, transcript, truth_score, faces_detected, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		result.UploadID, result.UserID, result.Transcript, result.TruthScore, faces, result.AnalyzedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: record analysis: %w", models.ErrStorageFailure, err)
	}
	if result.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("%w: analysis id: %w", models.ErrStorageFailure, err)
	}
	return &result, nil
}

const analysisColumns = `a.id, a.upload_id, a.user_id, u.filename, a.transcript, a.truth_score, a.faces_detected, a.analyzed_at`

// GetAnalysis returns the result only if both it and its upload belong to user.
func (s *Service) GetAnalysis(ctx context.Context, user *models.User, id int64) (*models.AnalysisResult, error) {
	if user == nil || user.ID <= 0 {
		return nil, models.ErrUnauthorized
	}
	if id <= 0 {
		return nil, models.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+`
		 FROM analyses a JOIN uploads u ON u.id = a.upload_id
		 WHERE a.id = ? AND a.user_id = ? AND u.user_id = ?`,
		id, user.ID, user.ID,
	)
	result, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	return result, nil
}

// ListAnalysisHistory pages through the user's results ordered by analysis
// time, ties broken by id in the same direction.
func (s *Service) ListAnalysisHistory(ctx context.Context, user *models.User, q HistoryQuery) ([]models.AnalysisResult, error) {
	if user == nil || user.ID <= 0 {
		return nil, models.ErrUnauthorized
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	dir := "DESC"
	if q.Sort == models.SortAscending {
		dir = "ASC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+`
		 FROM analyses a JOIN uploads u ON u.id = a.upload_id
		 WHERE a.user_id = ? AND u.user_id = ?
		 ORDER BY a.analyzed_at `+dir+`, a.id `+dir+`
		 LIMIT ? OFFSET ?`,
		user.ID, user.ID, q.Limit, q.Skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	results := make([]models.AnalysisResult, 0, q.Limit)
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*models.AnalysisResult, error) {
	var (
		r     models.AnalysisResult
		faces sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.UploadID, &r.UserID, &r.FileName, &r.Transcript, &r.TruthScore, &faces, &r.AnalyzedAt); err != nil {
		return nil, err
	}
	if faces.Valid {
		n := int(faces.Int64)
		r.FacesDetected = &n
	}
	return &r, nil
}

// SanitizeFileName reduces a client-supplied name to its final path element.
func SanitizeFileName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return "", fmt.Errorf("%w: filename is required", models.ErrValidation)
	}
	base := filepath.Base(name)
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: invalid filename %q", models.ErrValidation, name)
	}
	if strings.ContainsRune(base, 0) {
		return "", fmt.Errorf("%w: invalid filename", models.ErrValidation)
	}
	return base, nil
}

// blobKey gives every upload its own immutable object under the user's prefix.
func blobKey(userID int64, name string) string {
	return strconv.FormatInt(userID, 10) + "/" + uuid.NewString() + "/" + name
}

// limitedReader fails once more than max bytes have been read.
type limitedReader struct {
	r        io.Reader
	max      int64
	read     int64
	exceeded bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errTooLarge
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.max > 0 && l.read > l.max {
		l.exceeded = true
		return n, errTooLarge
	}
	return n, err
}
