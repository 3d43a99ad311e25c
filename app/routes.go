package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auth "github.com/goliatone/go-auth-gate"
	"github.com/goliatone/go-auth-gate/api"
	"github.com/goliatone/go-auth-gate/container"
	"github.com/goliatone/go-auth-gate/errorlog"
	"github.com/goliatone/go-auth-gate/mapping"
	"github.com/goliatone/go-auth-gate/middleware/jwtware"
	"github.com/goliatone/go-auth-gate/versioning"
)

// CurrentUserKey is the locals key holding the admitted *auth.User
const CurrentUserKey = "current_user"

// TokenResponse is returned by the sign in endpoint
type TokenResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresIn   int64            `json:"expires_in"`
	User        auth.UserProfile `json:"user"`
}

func (a *App) routes() error {
	c := a.container

	validator, err := container.Resolve[auth.TokenValidator](c, KeyTokenValidator)
	if err != nil {
		return err
	}
	gate, err := container.Resolve[*auth.AdmissionGate](c, KeyGate)
	if err != nil {
		return err
	}
	mappings, err := container.Resolve[*mapping.Registry](c, KeyMappings)
	if err != nil {
		return err
	}
	sink, err := container.Resolve[*errorlog.Sink](c, KeyErrorLog)
	if err != nil {
		return err
	}
	version, err := a.versionMiddleware()
	if err != nil {
		return err
	}

	authorize := jwtware.New(jwtware.Config{
		TokenValidator: validator,
		TokenLookup:    a.config.JWT.TokenLookup,
		ValidationListeners: []jwtware.ValidationListener{
			jwtware.AdmissionListener(gate, CurrentUserKey),
		},
	})

	srv := a.server
	srv.Use(container.Middleware(c, func(err error) {
		a.logger.Warn("request scope close failed", "error", err)
	}))

	srv.Get("/healthz", a.health)
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{
		Registry: a.metrics,
	})))

	v := srv.Group("/api/v:version")

	// anonymous
	v.Post("/users", version, a.register(mappings))
	v.Post("/users/token", version, a.signIn(mappings))

	// authenticated
	v.Get("/users/me", version, authorize, a.me(mappings))
	v.Post("/users/me/password", version, authorize, a.changePassword)
	v.Post("/users/me/stamp", version, authorize, a.rotateStamp)
	v.Get("/roles", version, authorize, a.listRoles(mappings))

	errorlog.Mount(srv, errorlog.ViewerConfig{
		Path:       a.config.Site.ErrorLogPath,
		Sink:       sink,
		Mappings:   mappings,
		Permission: requireRole(a.config.Site.ErrorLogRole),
	}, authorize)

	return nil
}

func (a *App) versionMiddleware() (fiber.Handler, error) {
	s := a.config.Versioning

	def, err := versioning.Parse(s.DefaultVersion)
	if err != nil {
		return nil, err
	}
	supported, err := parseVersions(s.Supported)
	if err != nil {
		return nil, err
	}
	deprecated, err := parseVersions(s.Deprecated)
	if err != nil {
		return nil, err
	}

	readers := []versioning.Reader{versioning.URLSegment("version")}
	if s.AllowQueryString {
		readers = append(readers, versioning.QueryString(""))
	}
	if s.AllowHeader {
		readers = append(readers, versioning.Header(""))
	}
	if s.AllowMediaTypeParm {
		readers = append(readers, versioning.MediaType(""))
	}

	return versioning.Middleware(versioning.Options{
		DefaultVersion:                      def,
		AssumeDefaultVersionWhenUnspecified: s.AssumeDefault,
		ReportAPIVersions:                   s.ReportAPIVersions,
		Supported:                           supported,
		Deprecated:                          deprecated,
		Reader:                              versioning.Combine(readers...),
	}), nil
}

func parseVersions(raw []string) ([]versioning.Version, error) {
	out := make([]versioning.Version, 0, len(raw))
	for _, r := range raw {
		v, err := versioning.Parse(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (a *App) health(c *fiber.Ctx) error {
	if err := a.db.PingContext(c.UserContext()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "database unavailable").
			WithTextCode("HEALTH_DB_DOWN")
	}
	return api.OK(c, fiber.Map{"status": "ok"})
}

func (a *App) register(mappings *mapping.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := &RegisterPayload{}
		if err := bindPayload(c, payload); err != nil {
			return err
		}

		auther, err := scopedAuthenticator(c)
		if err != nil {
			return err
		}

		user, err := auther.Register(c.UserContext(), payload.User(), payload.Password)
		if err != nil {
			return err
		}

		profile, err := mapping.Map[*auth.User, auth.UserProfile](mappings, user)
		if err != nil {
			return err
		}
		return api.Created(c, profile)
	}
}

func (a *App) signIn(mappings *mapping.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := &SignInPayload{}
		if err := bindPayload(c, payload); err != nil {
			return err
		}

		auther, err := scopedAuthenticator(c)
		if err != nil {
			return err
		}

		user, token, err := auther.SignIn(c.UserContext(), payload.UserName, payload.Password)
		if err != nil {
			return err
		}

		profile, err := mapping.Map[*auth.User, auth.UserProfile](mappings, user)
		if err != nil {
			return err
		}

		return api.OK(c, TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int64(a.config.JWT.Expiration().Seconds()),
			User:        profile,
		})
	}
}

func (a *App) me(mappings *mapping.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}

		repos, err := container.Resolve[auth.RepositoryManager](a.container, KeyRepositories)
		if err != nil {
			return err
		}
		roles, err := repos.Users().RolesOf(c.UserContext(), user.ID)
		if err != nil {
			return err
		}
		user.Roles = roles

		profile, err := mapping.Map[*auth.User, auth.UserProfile](mappings, user)
		if err != nil {
			return err
		}
		return api.OK(c, profile)
	}
}

func (a *App) changePassword(c *fiber.Ctx) error {
	payload := &ChangePasswordPayload{}
	if err := bindPayload(c, payload); err != nil {
		return err
	}

	user, err := currentUser(c)
	if err != nil {
		return err
	}

	auther, err := scopedAuthenticator(c)
	if err != nil {
		return err
	}

	if err := auther.ChangePassword(c.UserContext(), user, payload.CurrentPassword, payload.NewPassword); err != nil {
		return err
	}
	return api.OK(c, nil)
}

func (a *App) rotateStamp(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	auther, err := scopedAuthenticator(c)
	if err != nil {
		return err
	}

	if err := auther.RotateSecurityStamp(c.UserContext(), user); err != nil {
		return err
	}
	return api.OK(c, nil)
}

func (a *App) listRoles(mappings *mapping.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		repos, err := container.Resolve[auth.RepositoryManager](a.container, KeyRepositories)
		if err != nil {
			return err
		}

		roles, err := repos.Roles().List(c.UserContext())
		if err != nil {
			return err
		}

		views, err := mapping.MapSlice[*auth.Role, auth.RoleView](mappings, roles)
		if err != nil {
			return err
		}
		return api.List(c, views)
	}
}

func scopedAuthenticator(c *fiber.Ctx) (*auth.Auther, error) {
	scope, ok := container.FromFiber(c)
	if !ok {
		return nil, goerrors.New("request scope is missing", goerrors.CategoryInternal)
	}
	return container.Resolve[*auth.Auther](scope, KeyAuthenticator)
}

func currentUser(c *fiber.Ctx) (*auth.User, error) {
	if user, ok := auth.FromContext(c.UserContext()); ok && user != nil {
		return user, nil
	}
	if user, ok := c.Locals(CurrentUserKey).(*auth.User); ok && user != nil {
		return user, nil
	}
	return nil, auth.ErrUnauthorized.Clone()
}

// requireRole allows any admitted principal when role is empty
func requireRole(role string) errorlog.PermissionFunc {
	return func(c *fiber.Ctx) bool {
		principal, ok := jwtware.PrincipalFrom(c)
		if !ok {
			return false
		}
		return role == "" || principal.HasRole(role)
	}
}

func principalUserName(c *fiber.Ctx) string {
	if principal, ok := jwtware.PrincipalFrom(c); ok {
		return principal.UserName()
	}
	return ""
}
