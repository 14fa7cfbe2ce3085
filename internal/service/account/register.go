package account

import (
	"github.com/gofiber/fiber/v2"

	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/utils/response"
)

// Registrar ties the auth routes into the HTTP server. The public router is
// already mounted at /auth.
type Registrar struct {
	svc *Service
}

func NewRegistrar(svc *Service) *Registrar {
	return &Registrar{svc: svc}
}

func (r *Registrar) RegisterRoutes(public, _ fiber.Router) {
	public.Post("/signup", r.signup)
	public.Post("/verify-email", r.verify)
	public.Post("/resend-otp", r.resend)
	public.Post("/login", r.login)
}

func bind[T any](c *fiber.Ctx) (T, error) {
	var req T
	if err := c.BodyParser(&req); err != nil {
		return req, svcErr.Validation("invalid request body")
	}
	return req, nil
}

func (r *Registrar) signup(c *fiber.Ctx) error {
	req, err := bind[SignupRequest](c)
	if err != nil {
		return err
	}
	res, err := r.svc.Signup(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.Created(c, "OTP sent successfully", res)
}

func (r *Registrar) verify(c *fiber.Ctx) error {
	req, err := bind[VerifyRequest](c)
	if err != nil {
		return err
	}
	res, err := r.svc.VerifyEmail(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.OK(c, "Email verified successfully", res)
}

func (r *Registrar) resend(c *fiber.Ctx) error {
	req, err := bind[EmailRequest](c)
	if err != nil {
		return err
	}
	res, err := r.svc.ResendOTP(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.OK(c, "OTP resent successfully", res)
}

func (r *Registrar) login(c *fiber.Ctx) error {
	req, err := bind[LoginRequest](c)
	if err != nil {
		return err
	}
	res, err := r.svc.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return response.OK(c, "Login successful", res)
}
