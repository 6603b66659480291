package capability

import "errors"

var (
	// ErrEmbeddingUnavailable はEmbeddingバックエンドに到達できない場合のエラー
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrIndexUnavailable はベクトルインデックスに到達できない場合のエラー
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGenerationUnavailable は回答生成バックエンドに到達できない場合のエラー
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
)
