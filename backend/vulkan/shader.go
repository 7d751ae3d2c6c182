package vulkan

// warpShaderSource is the WGSL compute kernel for the projective warp.
// Pixels travel as packed RGBA u32 storage buffers (little-endian byte
// order matches the frame layout, so packing is free on the CPU side).
// No loops: each invocation handles exactly one output pixel.
const warpShaderSource = `
struct Params {
    inv0: vec4<f32>,
    inv1: vec4<f32>,
    inv2: vec4<f32>,
    c_tl: vec2<f32>,
    c_tr: vec2<f32>,
    c_bl: vec2<f32>,
    c_br: vec2<f32>,
    size: vec2<u32>,
    _pad: vec2<u32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> src_pixels: array<u32>;
@group(0) @binding(2) var<storage, read_write> dst_pixels: array<u32>;

fn edge(a: vec2<f32>, b: vec2<f32>, p: vec2<f32>) -> f32 {
    return (b.x - a.x) * (p.y - a.y) - (b.y - a.y) * (p.x - a.x);
}

// Walks the quad TL -> TR -> BR -> BL; a point is inside when every
// edge test carries the same sign. A self-intersecting quad has no
// such point, so its output goes fully transparent.
fn inside_quad(p: vec2<f32>) -> bool {
    let e0 = edge(params.c_tl, params.c_tr, p);
    let e1 = edge(params.c_tr, params.c_br, p);
    let e2 = edge(params.c_br, params.c_bl, p);
    let e3 = edge(params.c_bl, params.c_tl, p);
    let all_pos = e0 >= 0.0 && e1 >= 0.0 && e2 >= 0.0 && e3 >= 0.0;
    let all_neg = e0 <= 0.0 && e1 <= 0.0 && e2 <= 0.0 && e3 <= 0.0;
    return all_pos || all_neg;
}

fn load_px(x: i32, y: i32) -> vec4<f32> {
    let cx = clamp(x, 0, i32(params.size.x) - 1);
    let cy = clamp(y, 0, i32(params.size.y) - 1);
    let v = src_pixels[u32(cy) * params.size.x + u32(cx)];
    return vec4<f32>(
        f32(v & 0xFFu),
        f32((v >> 8u) & 0xFFu),
        f32((v >> 16u) & 0xFFu),
        f32((v >> 24u) & 0xFFu)) / 255.0;
}

// Bilinear fetch with texel centers at (i + 0.5) / size and edge
// clamping, matching GL_LINEAR + CLAMP_TO_EDGE.
fn sample_bilinear(sx: f32, sy: f32) -> u32 {
    let fx = sx * f32(params.size.x) - 0.5;
    let fy = sy * f32(params.size.y) - 0.5;
    let x0 = i32(floor(fx));
    let y0 = i32(floor(fy));
    let tx = fx - f32(x0);
    let ty = fy - f32(y0);

    let p00 = load_px(x0, y0);
    let p10 = load_px(x0 + 1, y0);
    let p01 = load_px(x0, y0 + 1);
    let p11 = load_px(x0 + 1, y0 + 1);
    let c = mix(mix(p00, p10, tx), mix(p01, p11, tx), ty);

    let r = u32(clamp(c.x, 0.0, 1.0) * 255.0 + 0.5);
    let g = u32(clamp(c.y, 0.0, 1.0) * 255.0 + 0.5);
    let b = u32(clamp(c.z, 0.0, 1.0) * 255.0 + 0.5);
    let a = u32(clamp(c.w, 0.0, 1.0) * 255.0 + 0.5);
    return r | (g << 8u) | (b << 16u) | (a << 24u);
}

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x >= params.size.x || gid.y >= params.size.y) {
        return;
    }
    let idx = gid.y * params.size.x + gid.x;
    let p = vec2<f32>(
        (f32(gid.x) + 0.5) / f32(params.size.x),
        (f32(gid.y) + 0.5) / f32(params.size.y));

    // Positive-form conditions only: a NaN coordinate fails every
    // comparison and falls out transparent instead of reaching the
    // sampler with an indeterminate index.
    var color: u32 = 0u;
    if (inside_quad(p)) {
        let denom = params.inv2.x * p.x + params.inv2.y * p.y + params.inv2.z;
        if (abs(denom) >= 1e-12) {
            let sx = (params.inv0.x * p.x + params.inv0.y * p.y + params.inv0.z) / denom;
            let sy = (params.inv1.x * p.x + params.inv1.y * p.y + params.inv1.z) / denom;
            if (sx >= 0.0 && sx <= 1.0 && sy >= 0.0 && sy <= 1.0) {
                color = sample_bilinear(sx, sy);
            }
        }
    }
    dst_pixels[idx] = color;
}
`
