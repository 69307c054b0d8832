package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var excludedExtensions = []string{
	".png", ".gif", ".jpeg", ".jpg", ".pdf", ".zip", ".gz",
}

func Gzip() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
