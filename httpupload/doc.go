// Package httpupload streams the file parts of multipart/form-data
// requests into a gridfs.Storage from gin handlers.
//
// Parts are read in arrival order straight from the request body, so a
// file is never buffered whole. Each file part goes through
// Storage.HandleFile; the stored files and the plain form fields are
// available to later handlers through Result.
//
//	up := httpupload.New(storage, httpupload.WithMaxFileSize("16MB"))
//	r.POST("/avatar", up.Single("avatar"), func(c *gin.Context) {
//	    res := httpupload.Get(c)
//	    c.JSON(http.StatusCreated, res.Files[0])
//	})
//
// The first failing part stops the request. Its error is rendered as an
// errors.ErrorResponse using gridfs.ToAppError.
package httpupload
