package api

import (
	"context"
	"errors"
	"fmt"

	"qline/internal/certify"
)

// CertifyRequest asks for a certification at a chosen level.
type CertifyRequest struct {
	Level        string `json:"level"`
	WarrantyDays int    `json:"warrantyDays,omitempty"`
	Actor        string `json:"-"`
}

// IssueCertification mints a certification for the job. Repeat calls while an
// active certification exists return it with Created=false.
func (s *JobService) IssueCertification(ctx context.Context, id string, req CertifyRequest) (CertificationResponse, error) {
	level, ok := certify.ParseLevel(req.Level)
	if !ok {
		return CertificationResponse{}, fmt.Errorf("unknown certification level %q", req.Level)
	}
	cert, created, err := s.issuer.Issue(ctx, certify.IssueRequest{
		QLID:         id,
		Level:        level,
		Actor:        req.Actor,
		WarrantyDays: req.WarrantyDays,
	})
	if err != nil {
		return CertificationResponse{}, err
	}
	return CertificationResponse{Certification: FromCertification(cert), Created: created}, nil
}

// RevokeRequest revokes an issued certification.
type RevokeRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"-"`
}

// RevokeCertification flags a certification revoked.
func (s *JobService) RevokeCertification(ctx context.Context, serial string, req RevokeRequest) (CertificationView, error) {
	if req.Reason == "" {
		return CertificationView{}, errors.New("revocation reason is required")
	}
	cert, err := s.issuer.Revoke(ctx, serial, req.Reason, req.Actor)
	if err != nil {
		return CertificationView{}, err
	}
	return FromCertification(cert), nil
}

// Certification fetches one certification by serial.
func (s *JobService) Certification(ctx context.Context, serial string) (CertificationView, error) {
	cert, err := s.issuer.Lookup(ctx, serial)
	if err != nil {
		return CertificationView{}, err
	}
	return FromCertification(cert), nil
}

// Certifications lists every certification minted for a job.
func (s *JobService) Certifications(ctx context.Context, id string) ([]CertificationView, error) {
	certs, err := s.issuer.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromCertifications(certs), nil
}
