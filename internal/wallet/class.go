package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Program describes the loyalty class every pass belongs to.
type Program struct {
	IssuerName      string
	Name            string
	LogoURI         string
	HeroImageURI    string
	BackgroundColor string
}

type image struct {
	SourceURI struct {
		URI string `json:"uri"`
	} `json:"sourceUri"`
}

func newImage(uri string) *image {
	if uri == "" {
		return nil
	}
	img := &image{}
	img.SourceURI.URI = uri
	return img
}

type loyaltyClass struct {
	ID                 string `json:"id"`
	IssuerName         string `json:"issuerName"`
	ProgramName        string `json:"programName"`
	ProgramLogo        *image `json:"programLogo,omitempty"`
	HeroImage          *image `json:"heroImage,omitempty"`
	HexBackgroundColor string `json:"hexBackgroundColor,omitempty"`
	ReviewStatus       string `json:"reviewStatus"`
}

// EnsureClass creates the loyalty class. created is false when it already existed.
func (c *Client) EnsureClass(ctx context.Context, p Program) (created bool, err error) {
	if p.IssuerName == "" || p.Name == "" {
		return false, errors.New("wallet: issuer name and program name are required")
	}
	err = c.do(ctx, http.MethodPost, "/loyaltyClass", loyaltyClass{
		ID:                 c.classID,
		IssuerName:         p.IssuerName,
		ProgramName:        p.Name,
		ProgramLogo:        newImage(p.LogoURI),
		HeroImage:          newImage(p.HeroImageURI),
		HexBackgroundColor: p.BackgroundColor,
		ReviewStatus:       "UNDER_REVIEW",
	}, nil)
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create loyalty class %s: %w", c.classID, err)
	}
	return true, nil
}
