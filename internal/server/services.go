package server

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/merklebox/merklebox/internal/blob"
	"github.com/merklebox/merklebox/internal/server/content"
	"github.com/merklebox/merklebox/internal/server/tree"
)

type Services struct {
	Blob    blob.Client
	Content *content.Service
	Tree    *tree.Service
}

func NewServices(config *Config, db *sqlx.DB) (*Services, error) {
	var blobClient blob.Client
	if config.UseMemoryBlob {
		blobClient = blob.NewMemoryClient()
	} else {
		c, err := blob.NewS3Client(&config.Blob)
		if err != nil {
			return nil, fmt.Errorf("create blob client: %w", err)
		}
		blobClient = c
	}

	contentStore, err := content.NewStore(db)
	if err != nil {
		return nil, err
	}
	contentSvc := content.NewService(contentStore, blobClient)

	treeStore, err := tree.NewStore(db)
	if err != nil {
		return nil, err
	}
	treeSvc := tree.NewService(treeStore, contentSvc)

	return &Services{
		Blob:    blobClient,
		Content: contentSvc,
		Tree:    treeSvc,
	}, nil
}
