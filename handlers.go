package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"consultas/models"
	"consultas/pkg/ingest"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// User-facing messages, matching the front-end's expectations.
const (
	msgUploadOK      = "Upload realizado com sucesso."
	msgBadFormat     = "O formato da planilha não está conforme o padrão estabelecido."
	msgHasDuplicates = "Algumas cidades já existem. Deseja substituir os dados?"
	msgUploadFailed  = "Ocorreu um erro ao processar o upload da planilha."
	msgReplaceOK     = "Dados substituídos com sucesso."
	msgReplaceFailed = "Ocorreu um erro ao processar a substituição dos dados."
	msgNotXLSX       = "Por favor, envie um arquivo Excel (.xlsx)."
	msgNoFile        = "Arquivo não enviado."
	msgNoSchedule    = "Nenhuma semana cadastrada para a cidade informada."
)

func setupRoutes(r *gin.Engine, store ingest.Store) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/upload", uploadHandler(store))
	authGroup.POST("/replace", replaceHandler(store))
	authGroup.GET("/cidades", listCidadesHandler)
	authGroup.GET("/semanas/search", searchSemanasHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

// getUserFromContext fetches the authenticated user named by the JWT claims.
func getUserFromContext(c *gin.Context) (*models.User, bool) {
	unameVal, _ := c.Get("username")
	if unameVal == nil {
		return nil, false
	}
	uname := unameVal.(string)
	var user models.User
	if err := db.Where("username = ?", uname).First(&user).Error; err != nil {
		return nil, false
	}
	return &user, true
}

func meHandler(c *gin.Context) {
	usernameVal, _ := c.Get("username")
	if usernameVal == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "context missing username"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": usernameVal.(string)})
}

// openSpreadsheet pulls the multipart attachment and rejects anything that
// is not an xlsx before the decoder ever sees it.
func openSpreadsheet(c *gin.Context) (multipart.File, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgNoFile})
		return nil, false
	}
	ct := file.Header.Get("Content-Type")
	if ct != xlsxContentType && !strings.HasSuffix(strings.ToLower(file.Filename), ".xlsx") {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgNotXLSX})
		return nil, false
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": msgUploadFailed})
		return nil, false
	}
	return f, true
}

// uploadHandler runs decode -> validate -> conflict detection. With no
// conflicts it inserts every row's week; with conflicts it answers
// confirmReplace so the client can drive the per-city confirmation loop
// through /replace.
func uploadHandler(store ingest.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := getUserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "user not found"})
			return
		}
		f, ok := openSpreadsheet(c)
		if !ok {
			return
		}
		defer f.Close()

		sess := ingest.NewSession(store, user.ID)
		if err := sess.Begin(f); err != nil {
			var mismatch *ingest.SchemaMismatchError
			switch {
			case errors.As(err, &mismatch):
				log.Warn().Err(err).Msg("upload rejected: schema mismatch")
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgBadFormat})
			case errors.Is(err, ingest.ErrDecode):
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgUploadFailed})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			}
			return
		}

		conflicts, err := sess.CheckConflicts(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("conflict detection failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": msgUploadFailed})
			return
		}
		if len(conflicts) > 0 {
			c.JSON(http.StatusOK, gin.H{
				"success":        false,
				"message":        msgHasDuplicates,
				"confirmReplace": true,
				"duplicates":     conflicts,
			})
			return
		}

		rep, err := sess.InsertAll(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("insert failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": msgUploadFailed})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   msgUploadOK + " Nenhuma cidade duplicada encontrada.",
			"cidades":   rep.Cities,
			"dias":      rep.Days,
			"ignorados": rep.SkippedDays,
		})
	}
}

// replaceHandler is the confirmation leg of the loop: the client resubmits
// the same file plus the cidade/uf of the one duplicate being confirmed.
func replaceHandler(store ingest.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := getUserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "user not found"})
			return
		}
		cidade := strings.TrimSpace(c.PostForm("cidade"))
		uf := strings.TrimSpace(c.PostForm("uf"))
		if cidade == "" || uf == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "cidade e uf são obrigatórios"})
			return
		}
		f, ok := openSpreadsheet(c)
		if !ok {
			return
		}
		defer f.Close()

		sess := ingest.NewSession(store, user.ID)
		if err := sess.Begin(f); err != nil {
			var mismatch *ingest.SchemaMismatchError
			switch {
			case errors.As(err, &mismatch):
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgBadFormat})
			case errors.Is(err, ingest.ErrDecode):
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": msgReplaceFailed})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			}
			return
		}
		if _, err := sess.CheckConflicts(c.Request.Context()); err != nil {
			log.Error().Err(err).Msg("conflict detection failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": msgReplaceFailed})
			return
		}
		if sess.State() != ingest.StateAwaitingConfirmation {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": msgNoSchedule})
			return
		}

		semanaID, err := sess.Replace(c.Request.Context(), cidade, uf)
		switch {
		case err == nil:
		case errors.Is(err, ingest.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": msgNoSchedule})
			return
		case errors.Is(err, ingest.ErrStore):
			log.Error().Err(err).Msg("replace failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": msgReplaceFailed})
			return
		default:
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   msgReplaceOK,
			"semana_id": semanaID,
			"restantes": len(sess.Remaining()),
		})
	}
}

// listCidadesHandler feeds the search dropdown with the distinct cities
// that have schedules.
func listCidadesHandler(c *gin.Context) {
	var cidades []string
	if err := db.Model(&models.Semana{}).Distinct("cidade").Order("cidade").Pluck("cidade", &cidades).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cidades": cidades})
}

// searchSemanasHandler returns every schedule for a city with its day rows
// keyed by weekday, shaped for the weekly status table.
func searchSemanasHandler(c *gin.Context) {
	cidade := ingest.Normalize(c.Query("cidade"))
	if cidade == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "cidade é obrigatória"})
		return
	}
	var semanas []models.Semana
	if err := db.Preload("Planilhas").Where("cidade = ?", cidade).Order("uf").Find(&semanas).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "query failed"})
		return
	}
	type resultado struct {
		ID     uint           `json:"id"`
		Cidade string         `json:"cidade"`
		UF     string         `json:"uf"`
		Dias   map[string]int `json:"dias"`
	}
	resultados := make([]resultado, 0, len(semanas))
	for _, sem := range semanas {
		dias := make(map[string]int, len(ingest.Weekdays))
		for _, dia := range ingest.Weekdays {
			dias[dia] = 0 // days without a stored row render as status 0
		}
		for _, p := range sem.Planilhas {
			dias[p.DiaSemana] = p.Status
		}
		resultados = append(resultados, resultado{ID: sem.ID, Cidade: sem.Cidade, UF: sem.UF, Dias: dias})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resultados": resultados})
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if err := Register(req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user registered successfully"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	user, err := Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": err.Error()})
		return
	}
	tokenString, err := signAccessToken(user, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "login successful", "token": tokenString, "refresh_token": refreshToken})
}

// signAccessToken issues an HS256 JWT with the user's name and role.
func signAccessToken(user models.User, ttl time.Duration) (string, error) {
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"role":     roleName,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// createAndStoreRefreshToken generates a random refresh token, stores its
// hash with expiry and returns the raw token string.
func createAndStoreRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	h := sha256.Sum256([]byte(token))
	rt := models.RefreshToken{UserID: userID, TokenHash: hex.EncodeToString(h[:]), ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and
// rotates the refresh token.
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "user not found"})
		return
	}
	tokenString, err := signAccessToken(user, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to generate token"})
		return
	}
	// rotate: revoke the old token, hand out a new one
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a given refresh token (useful on logout).
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "refresh token revoked"})
}
